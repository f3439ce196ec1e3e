// cmd/polydiff — CLI for the polydiff symbolic differentiation kernel.
//
// Usage:
//
//	polydiff demo                 differentiate the built-in example
//	polydiff diff [file]          differentiate a JSON expression tree
//	polydiff serve --port 8080    run the HTTP tool server
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	polydiff "github.com/mwhitt87/polydiff"
)

const maxBodyBytes = 1 << 20 // 1 MiB

var logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
	Level:      slog.LevelInfo,
	TimeFormat: time.Kitchen,
}))

func main() {
	root := &cobra.Command{
		Use:           "polydiff",
		Short:         "Symbolic differentiation of polynomial expression trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDemoCmd(), newDiffCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Differentiate the built-in example x^3 * x^2",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := polydiff.ProductOf(polydiff.V("x", 3), polydiff.V("x", 2))
			df, err := polydiff.Diff(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "d/dx[%s] = %s\n", f.Render(), df.Render())
			return nil
		},
	}
}

func newDiffCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "diff [file]",
		Short: "Differentiate a JSON expression tree from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if len(args) == 1 && args[0] != "-" {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read expression: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse expression: %w", err)
			}
			expr, err := polydiff.FromJSON(data)
			if err != nil {
				return fmt.Errorf("decode expression: %w", err)
			}
			d, err := polydiff.Diff(expr)
			if err != nil {
				return err
			}

			if asJSON {
				out, err := polydiff.ToJSON(d)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the derivative tree as JSON")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.HandleFunc("/tool", handleTool)
			mux.HandleFunc("/schema", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, polydiff.ToolSpec())
			})
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"status":"ok"}`)
			})

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", port),
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			logger.Info("polydiff tool server listening", "addr", srv.Addr)
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on")
	return cmd
}

// handleTool decodes one tool call and dispatches it to the kernel.
func handleTool(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic in /tool", "panic", rec, "stack", string(debug.Stack()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req polydiff.ToolRequest
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if dec.More() {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: trailing data")
		return
	}

	resp := polydiff.HandleToolCall(req)
	if resp.Error != "" {
		logger.Warn("tool call failed", "tool", req.Tool, "err", resp.Error)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
