package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/warp/tontine-engine/api"
)

// flags
var (
	addressFlag = &cli.StringFlag{
		Name:     "address",
		Usage:    "member address",
		Required: true,
	}
	newAddressFlag = &cli.StringFlag{
		Name:     "new",
		Usage:    "replacement member address",
		Required: true,
	}
	reasonFlag = &cli.StringFlag{
		Name:  "reason",
		Usage: "reason recorded with the early close",
	}
	fileFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "instantiate message JSON file, stdin when empty",
	}
	roundFlag = &cli.Uint64Flag{
		Name:  "round",
		Usage: "round number, current round when 0",
	}
	scenarioFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "scenario id (fresh-tontine, first-round, late-payer, full-cycle)",
		Required: true,
	}
)

// commands
var (
	stateCmd = &cli.Command{
		Name:   "state",
		Usage:  "Show the lifecycle phase and round counters",
		Action: stateAction,
	}
	configCmd = &cli.Command{
		Name:   "config",
		Usage:  "Show the tontine configuration",
		Action: printAction(http.MethodGet, "/api/tontine/config"),
	}
	statsCmd = &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate statistics",
		Action: printAction(http.MethodGet, "/api/tontine/statistics"),
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Show the tontine balance, fees, and pending penalties",
		Action: printAction(http.MethodGet, "/api/tontine/balance"),
	}
	instantiateCmd = &cli.Command{
		Name:   "instantiate",
		Usage:  "Create the tontine from an instantiate message",
		Action: instantiateAction,
		Flags:  []cli.Flag{fileFlag},
	}
	startCmd = &cli.Command{
		Name:   "start",
		Usage:  "Start the tontine and open round 1",
		Action: printAction(http.MethodPost, "/api/tontine/start"),
	}
	pauseCmd = &cli.Command{
		Name:   "pause",
		Usage:  "Pause the tontine",
		Action: printAction(http.MethodPost, "/api/tontine/pause"),
	}
	resumeCmd = &cli.Command{
		Name:   "resume",
		Usage:  "Resume a paused tontine",
		Action: printAction(http.MethodPost, "/api/tontine/resume"),
	}
	closeCmd = &cli.Command{
		Name:   "close",
		Usage:  "Close the tontine early",
		Action: closeAction,
		Flags:  []cli.Flag{reasonFlag},
	}
	finalizeCmd = &cli.Command{
		Name:   "finalize",
		Usage:  "Finalize the tontine after the last round",
		Action: printAction(http.MethodPost, "/api/tontine/finalize"),
	}
	membersCmd = &cli.Command{
		Name:  "members",
		Usage: "Manage members",
		Subcommands: append(
			cli.Commands{},
			membersListCmd,
			membersRegisterCmd,
			membersRemoveCmd,
			membersReplaceCmd,
		),
	}
	membersListCmd = &cli.Command{
		Name:   "list",
		Usage:  "List members",
		Action: printAction(http.MethodGet, "/api/members"),
	}
	membersRegisterCmd = &cli.Command{
		Name:   "register",
		Usage:  "Register a member",
		Action: registerAction,
		Flags:  []cli.Flag{addressFlag},
	}
	membersRemoveCmd = &cli.Command{
		Name:   "remove",
		Usage:  "Remove a member",
		Action: removeAction,
		Flags:  []cli.Flag{addressFlag},
	}
	membersReplaceCmd = &cli.Command{
		Name:   "replace",
		Usage:  "Replace a member with a new address",
		Action: replaceAction,
		Flags:  []cli.Flag{addressFlag, newAddressFlag},
	}
	roundsCmd = &cli.Command{
		Name:   "round",
		Usage:  "Show a round",
		Action: roundAction,
		Flags:  []cli.Flag{roundFlag},
	}
	depositCmd = &cli.Command{
		Name:   "deposit",
		Usage:  "Deposit the sender's contribution to the current round",
		Action: printAction(http.MethodPost, "/api/rounds/current/deposits"),
	}
	distributeCmd = &cli.Command{
		Name:   "distribute",
		Usage:  "Distribute the current round to its beneficiary",
		Action: printAction(http.MethodPost, "/api/rounds/current/distribute"),
	}
	advanceCmd = &cli.Command{
		Name:   "advance",
		Usage:  "Open the next round",
		Action: printAction(http.MethodPost, "/api/rounds/advance"),
	}
	scheduleCmd = &cli.Command{
		Name:   "schedule",
		Usage:  "Show the beneficiary schedule",
		Action: printAction(http.MethodGet, "/api/beneficiaries/schedule"),
	}
	scenarioCmd = &cli.Command{
		Name:   "scenario",
		Usage:  "Reset the store and load a demo scenario",
		Action: scenarioAction,
		Flags:  []cli.Flag{scenarioFlag},
	}
)

func stateAction(ctx *cli.Context) error {
	st, err := request[api.StateDTO](ctx, http.MethodGet, "/api/tontine", nil)
	if err != nil {
		return err
	}
	fmt.Printf("phase: %s\nround: %d/%d\n", st.Phase, st.CurrentRound, st.TotalRounds)
	if st.CloseReason != "" {
		fmt.Printf("close reason: %s\n", st.CloseReason)
	}
	return nil
}

func instantiateAction(ctx *cli.Context) error {
	var (
		buf []byte
		err error
	)
	if path := ctx.String("file"); path != "" {
		buf, err = os.ReadFile(path)
	} else {
		buf, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}
	return printResult(request[json.RawMessage](ctx, http.MethodPost, "/api/tontine", json.RawMessage(buf)))
}

func closeAction(ctx *cli.Context) error {
	body := api.CloseRequest{Reason: ctx.String("reason")}
	return printResult(request[json.RawMessage](ctx, http.MethodPost, "/api/tontine/close", body))
}

func registerAction(ctx *cli.Context) error {
	body := api.RegisterMemberRequest{Address: ctx.String("address")}
	return printResult(request[json.RawMessage](ctx, http.MethodPost, "/api/members", body))
}

func removeAction(ctx *cli.Context) error {
	path := "/api/members/" + ctx.String("address")
	return printResult(request[json.RawMessage](ctx, http.MethodDelete, path, nil))
}

func replaceAction(ctx *cli.Context) error {
	body := api.ReplaceMemberRequest{OldMember: ctx.String("address"), NewMember: ctx.String("new")}
	return printResult(request[json.RawMessage](ctx, http.MethodPost, "/api/members/replace", body))
}

func roundAction(ctx *cli.Context) error {
	path := "/api/rounds/current"
	if n := ctx.Uint64("round"); n > 0 {
		path = fmt.Sprintf("/api/rounds/%d", n)
	}
	return printResult(request[json.RawMessage](ctx, http.MethodGet, path, nil))
}

func scenarioAction(ctx *cli.Context) error {
	body := api.LoadScenarioRequest{ScenarioID: ctx.String("id")}
	return printResult(request[json.RawMessage](ctx, http.MethodPost, "/api/scenarios/load", body))
}

func printAction(method, path string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		return printResult(request[json.RawMessage](ctx, method, path, nil))
	}
}

func printResult(raw json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}

func request[T any](ctx *cli.Context, method, path string, body any) (result T, err error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return result, err
		}
		reader = bytes.NewReader(buf)
	}

	url := strings.TrimSuffix(ctx.String("url"), "/") + path
	req, err := http.NewRequestWithContext(ctx.Context, method, url, reader)
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	if sender := ctx.String("sender"); len(sender) > 0 {
		req.Header.Add(api.SenderHeader, sender)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e api.ErrorResponse
		if jsonErr := json.Unmarshal(buf, &e); jsonErr != nil || e.Error == "" {
			err = fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(buf)))
			return
		}
		if e.Code != "" {
			err = fmt.Errorf("%s [%s]: %s", resp.Status, e.Code, e.Error)
			return
		}
		err = fmt.Errorf("%s: %s", resp.Status, e.Error)
		return
	}
	if len(buf) == 0 {
		return
	}
	err = json.Unmarshal(buf, &result)
	return
}
