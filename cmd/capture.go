package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type capturePayload struct {
	Customer registration.CustomerData `json:"customer"`
	Agent    registration.AgentData    `json:"agent"`
}

func newCaptureCmd() *cobra.Command {
	var flagFile string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a registration from a JSON file ({\"customer\":{...},\"agent\":{...}})",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := requireAgent()
			if err != nil {
				return err
			}
			payload, err := readCapturePayload(cmd, flagFile)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.syncer.Capture(cmd.Context(), agentID, payload.Customer, payload.Agent)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&flagFile, "file", "f", "-", "Registration JSON file, - for stdin")
	return cmd
}

func readCapturePayload(cmd *cobra.Command, path string) (capturePayload, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return capturePayload{}, errors.Wrap(err, "open registration file")
		}
		defer f.Close()
		r = f
	}
	var payload capturePayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return capturePayload{}, errors.Wrap(err, "decode registration JSON")
	}
	return payload, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
