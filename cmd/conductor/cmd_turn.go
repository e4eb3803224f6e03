package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"conductor/internal/turn"
	"conductor/internal/types"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	turnFile  string
	turnJSON  bool
	requestID string
)

// turnCmd runs one turn without the HTTP server
var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Run a single turn from a JSON request file",
	Long: `Reads a TurnRequest from --file (or stdin when the file is "-"), runs it
through the same orchestrator that serve uses, and prints the response.

Example:
  conductor turn --file turn.json
  conductor turn --file turn.json --json`,
	RunE: runTurn,
}

func init() {
	turnCmd.Flags().StringVarP(&turnFile, "file", "f", "-", "TurnRequest JSON file, - for stdin")
	turnCmd.Flags().BoolVar(&turnJSON, "json", false, "Print the raw response body")
	turnCmd.Flags().StringVar(&requestID, "request-id", "", "Request id (default: random)")
}

func runTurn(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if turnFile == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), 8<<20))
	} else {
		data, err = os.ReadFile(turnFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read turn request: %w", err)
	}

	var req types.TurnRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid turn request: %w", err)
	}

	a, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	id := requestID
	if id == "" {
		id = uuid.NewString()
	}
	resp := a.handler.HandleTurn(cmd.Context(), req, id)

	if turnJSON {
		body, err := turn.MarshalResponse(resp)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
	} else {
		renderResponse(cmd.OutOrStdout(), resp)
	}
	if !resp.OK() {
		return fmt.Errorf("turn failed with status %d", resp.HTTPStatus)
	}
	return nil
}
