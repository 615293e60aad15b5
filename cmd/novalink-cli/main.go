package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("NOVALINK_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://localhost:8645"
}

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	args = args[1:]
	switch command {
	case "deposit":
		requireArgs(args, 2, "deposit <party> <amount>")
		runDeposit(args[0], args[1])
	case "withdraw":
		requireArgs(args, 2, "withdraw <party> <amount>")
		runWithdraw(args[0], args[1])
	case "balance":
		requireArgs(args, 1, "balance <party>")
		runBalance(args[0])
	case "book":
		requireArgs(args, 3, "book <student> <tutor> <amount>")
		runBook(args[0], args[1], args[2])
	case "session":
		requireArgs(args, 1, "session <id>")
		runGetSession(args[0])
	case "sessions":
		requireArgs(args, 1, "sessions <party>")
		runListSessions(args[0])
	case "release":
		requireArgs(args, 2, "release <id> <actor>")
		runTransition("escrow_release", args[0], args[1])
	case "dispute":
		requireArgs(args, 2, "dispute <id> <actor>")
		runTransition("escrow_dispute", args[0], args[1])
	case "refund":
		requireArgs(args, 2, "refund <id> <actor>")
		runTransition("escrow_refund", args[0], args[1])
	case "review":
		requireArgs(args, 3, "review <session-id> <author> <rating> [text]")
		text := ""
		if len(args) > 3 {
			text = strings.Join(args[3:], " ")
		}
		runSubmitReview(args[0], args[1], args[2], text)
	case "reviews":
		requireArgs(args, 1, "reviews <tutor>")
		runListReviews(args[0])
	case "rating":
		requireArgs(args, 1, "rating <tutor>")
		runRating(args[0])
	case "register-tutor":
		requireArgs(args, 3, "register-tutor <address> <name> <hourly-rate> [subject...]")
		runRegisterTutor(args[0], args[1], args[2], args[3:])
	case "tutor":
		requireArgs(args, 1, "tutor <address>")
		runGetTutor(args[0])
	case "tutors":
		runListTutors()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out, nil
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Printf("Usage: novalink-cli %s\n", usage)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: novalink-cli [--rpc <url>] <command> [args]

Account commands:
  deposit <party> <amount>            Credit spendable balance (auth)
  withdraw <party> <amount>           Debit spendable balance (auth)
  balance <party>                     Show available and reserved funds

Session commands:
  book <student> <tutor> <amount>     Reserve funds and open a session (auth)
  session <id>                        Show a single session record
  sessions <party>                    List sessions involving a party
  release <id> <actor>                Release escrowed payment to the tutor (auth)
  dispute <id> <actor>                Freeze an active session for arbitration (auth)
  refund <id> <actor>                 Return disputed funds to the student (auth)

Review commands:
  review <session-id> <author> <rating> [text]   Submit a review (auth)
  reviews <tutor>                     List reviews for a tutor
  rating <tutor>                      Show a tutor's average rating

Registry commands:
  register-tutor <address> <name> <hourly-rate> [subject...]   (auth)
  tutor <address>                     Show a tutor profile
  tutors                              List registered tutors

Privileged commands require NOVALINK_RPC_TOKEN to be set.`)
}

func runDeposit(party, amount string) {
	printResult(call("escrow_deposit", map[string]string{"party": party, "amount": amount}, true))
}

func runWithdraw(party, amount string) {
	printResult(call("escrow_withdraw", map[string]string{"party": party, "amount": amount}, true))
}

func runBalance(party string) {
	printResult(call("escrow_balance", map[string]string{"party": party}, false))
}

func runBook(student, tutor, amount string) {
	printResult(call("escrow_bookSession", map[string]string{
		"student": student, "tutor": tutor, "amount": amount,
	}, true))
}

func runGetSession(id string) {
	printResult(call("escrow_getSession", map[string]string{"id": id}, false))
}

func runListSessions(party string) {
	printResult(call("escrow_listSessions", map[string]string{"party": party}, false))
}

func runTransition(method, id, actor string) {
	printResult(call(method, map[string]string{"id": id, "actor": actor}, true))
}

func runSubmitReview(sessionID, author, rating, text string) {
	value, err := strconv.ParseUint(rating, 10, 8)
	if err != nil || value < 1 || value > 5 {
		fmt.Println("Error: rating must be an integer between 1 and 5.")
		os.Exit(1)
	}
	printResult(call("review_submit", map[string]interface{}{
		"sessionId": sessionID,
		"author":    author,
		"rating":    value,
		"text":      text,
	}, true))
}

func runListReviews(tutor string) {
	printResult(call("review_list", map[string]string{"tutor": tutor}, false))
}

func runRating(tutor string) {
	printResult(call("review_average", map[string]string{"tutor": tutor}, false))
}

func runRegisterTutor(address, name, rate string, subjects []string) {
	printResult(call("registry_register", map[string]interface{}{
		"address":    address,
		"name":       name,
		"hourlyRate": rate,
		"subjects":   subjects,
	}, true))
}

func runGetTutor(address string) {
	printResult(call("registry_get", map[string]string{"address": address}, false))
}

func runListTutors() {
	printResult(call("registry_list", nil, false))
}

func call(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires NOVALINK_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printResult(result json.RawMessage, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, result, "", "  ") == nil {
		fmt.Println(pretty.String())
		return
	}
	fmt.Println(string(result))
}
