package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/jasonbot/be-your-own-rag/internal/rpc"
	"github.com/jasonbot/be-your-own-rag/internal/rpc/connectjson"
	queryrpc "github.com/jasonbot/be-your-own-rag/internal/rpc/query"
)

// NewAskCmd wires the ask command to stream query events from the daemon.
func NewAskCmd(opts *Options) *cobra.Command {
	var root string
	var modelOverride string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ask \"<question>\"",
		Short: "Ask a question about a codebase and stream the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			question := args[0]
			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("question cannot be empty")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sessionID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
			reqBody := rpc.QueryRequest{
				SessionID:     sessionID,
				CorrelationID: sessionID + "-corr",
				Question:      question,
				Root:          root,
				Model:         modelOverride,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return askNDJSON(ctx, cmd, baseURL+"/v1/query/stream", reqBody, verbose)
			default:
				return askConnect(ctx, cmd, baseURL+queryrpc.ConnectQueryProcedure, reqBody, verbose)
			}
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Workspace root to query (default: daemon's configured root)")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override model id for this query")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show tool activity while the query runs")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func askNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.QueryRequest, verbose bool) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var evt rpc.QueryEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt, verbose); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func askConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.QueryRequest, verbose bool) error {
	client := connect.NewClient[rpc.QueryStreamRequest, rpc.QueryEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.QueryStreamRequest{Query: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.QueryStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt, verbose); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.QueryEvent, verbose bool) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "note":
		if verbose {
			fmt.Fprintf(out, "[turn %d] %s\n", evt.Turn, evt.Content)
		}
	case "tool_call":
		if verbose {
			fmt.Fprintf(out, "[turn %d] -> %s %s\n", evt.Turn, evt.Tool, evt.Content)
		}
	case "tool_result":
		if verbose {
			status := "ok"
			if evt.IsError {
				status = "error"
			}
			fmt.Fprintf(out, "[turn %d] <- %s (%s)\n", evt.Turn, evt.Tool, status)
		}
	case "answer":
		fmt.Fprintln(out, evt.Content)
	case "done":
		if verbose {
			fmt.Fprintf(out, "[done in %d turns]\n", evt.Turns)
		}
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
