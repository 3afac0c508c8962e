package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryannaik/image-search/internal/search"
)

var (
	searchLimit int
	searchOpen  bool
	searchURL   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query a running search server",
	Long: `Send a text query to a running "serve" instance and print the best
matching images.

Examples:
  image-search search "sunset over the ocean"
  image-search search "a dog on a couch" -n 10 --open`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Number of results")
	searchCmd.Flags().BoolVarP(&searchOpen, "open", "o", false, "Open results in the default viewer")
	searchCmd.Flags().StringVar(&searchURL, "url", "http://127.0.0.1:8000", "Server URL")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	resp, err := querySearch(ctx, http.DefaultClient, searchURL, query, searchLimit)
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), resp)

	if searchOpen && len(resp.Results) > 0 {
		paths := make([]string, len(resp.Results))
		for i, r := range resp.Results {
			paths[i] = r.Path
		}
		return openFiles(paths)
	}
	return nil
}

func querySearch(ctx context.Context, client *http.Client, baseURL, query string, limit int) (search.Response, error) {
	body, err := json.Marshal(map[string]any{"query": query, "limit": limit})
	if err != nil {
		return search.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return search.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		var opErr interface{ Timeout() bool }
		if errors.As(err, &opErr) && opErr.Timeout() {
			return search.Response{}, fmt.Errorf("search request timed out: %w", err)
		}
		return search.Response{}, fmt.Errorf("server not reachable at %s (start it with: image-search serve): %w", baseURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return search.Response{}, fmt.Errorf("search returned status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out search.Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return search.Response{}, fmt.Errorf("decode search response: %w", err)
	}
	return out, nil
}

func printResults(w io.Writer, resp search.Response) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	fmt.Fprintf(w, "Found %d images, showing top %d:\n\n", resp.TotalImages, len(resp.Results))
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, r.Score, r.Path)
	}
}

func openFiles(paths []string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", paths...)
	case "windows":
		cmd = exec.Command("cmd", append([]string{"/c", "start", ""}, paths...)...)
	default:
		// xdg-open takes a single argument.
		for _, p := range paths {
			if err := exec.Command("xdg-open", p).Start(); err != nil {
				return fmt.Errorf("open %s: %w", p, err)
			}
		}
		return nil
	}
	return cmd.Run()
}
