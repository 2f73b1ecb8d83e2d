package main

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbatchelder/tap/internal/control"
	"github.com/bbatchelder/tap/internal/cursorcache"
)

func logsCmd() *cobra.Command {
	var (
		last          int
		stream        string
		grep          string
		regex         bool
		invert        bool
		caseSensitive bool
		follow        bool
		resume        bool
	)

	cmd := &cobra.Command{
		Use:     "logs <name>",
		Aliases: []string{"observe"},
		Short:   "Print or follow a service's captured output",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			sock, err := resolveSocket(name)
			if err != nil {
				return err
			}
			c := newClient(sock)

			tapDir := filepath.Dir(sock)
			if abs, err := filepath.Abs(tapDir); err == nil {
				tapDir = abs
			}
			cacheKey := cursorcache.Key(tapDir, name)

			var sinceCursor *uint64
			if resume {
				if path, err := cursorcache.Path(); err == nil {
					if v, ok, _ := cursorcache.Get(path, cacheKey); ok {
						sinceCursor = &v
					}
				}
			}

			query := func(cursor *uint64) (control.ObserveResponse, error) {
				q := url.Values{}
				if cursor != nil {
					q.Set("since_cursor", strconv.FormatUint(*cursor, 10))
				} else {
					q.Set("last", strconv.Itoa(last))
				}
				if stream != "" {
					q.Set("stream", stream)
				}
				if grep != "" {
					q.Set("grep", grep)
				}
				if regex {
					q.Set("regex", "1")
				}
				if invert {
					q.Set("invert", "1")
				}
				if caseSensitive {
					q.Set("case_sensitive", "1")
				}
				var resp control.ObserveResponse
				err := c.get("/v1/logs", q, &resp)
				return resp, err
			}

			resp, err := query(sinceCursor)
			if err != nil {
				return err
			}
			printEvents(resp)
			cursor := resp.CursorNext

			if resume {
				if path, err := cursorcache.Path(); err == nil {
					cursorcache.Set(path, cacheKey, cursor)
				}
			}

			if !follow {
				return nil
			}
			for {
				time.Sleep(500 * time.Millisecond)
				resp, err := query(&cursor)
				if err != nil {
					return err
				}
				if len(resp.Events) > 0 {
					printEvents(resp)
					cursor = resp.CursorNext
					if resume {
						if path, err := cursorcache.Path(); err == nil {
							cursorcache.Set(path, cacheKey, cursor)
						}
					}
				}
			}
		},
	}
	cmd.Flags().IntVar(&last, "last", 80, "number of most recent events to print (ignored when --resume finds a saved cursor)")
	cmd.Flags().StringVar(&stream, "stream", "", "filter to combined, stdout, or stderr")
	cmd.Flags().StringVar(&grep, "grep", "", "filter events by substring or, with --regex, pattern")
	cmd.Flags().BoolVar(&regex, "regex", false, "treat --grep as a regular expression")
	cmd.Flags().BoolVar(&invert, "invert", false, "invert the --grep match")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "make --grep case sensitive")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last cursor seen for this service")
	return cmd
}

func printEvents(resp control.ObserveResponse) {
	for _, e := range resp.Events {
		if strings.HasPrefix(e.Text, "--- ") {
			fmt.Println(e.Text)
			continue
		}
		fmt.Printf("[%s] %s\n", e.Stream, e.Text)
	}
}
