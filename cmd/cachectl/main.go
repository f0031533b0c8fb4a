// Command cachectl is the admin CLI for cmd/cached: purge a URL's cached
// variants, print runtime stats. Grounded on cmd/cli/commands' urfave/cli
// Command{Name,Usage,Action,Flags} shape, narrowed from a multi-command
// cluster CLI to the two operations this core exposes.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/vproxy-cache/vproxy/api"
)

var (
	serverFlag = cli.StringFlag{
		Name:  "server",
		Usage: "cached admin base URL",
		Value: "http://localhost:8081",
	}
	hostFlag = cli.StringFlag{Name: "host", Usage: "request Host header to purge"}
	pathFlag = cli.StringFlag{Name: "path", Usage: "request path to purge"}
)

func main() {
	app := cli.NewApp()
	app.Name = "cachectl"
	app.Usage = "admin CLI for cached"
	app.Flags = []cli.Flag{serverFlag}
	app.Commands = []cli.Command{
		{
			Name:  "purge",
			Usage: "evict every cached variant of host+path",
			Flags: []cli.Flag{hostFlag, pathFlag},
			Action: func(c *cli.Context) error {
				client := api.NewClient(c.GlobalString(serverFlag.Name))
				res, err := client.Purge(c.String(hostFlag.Name), c.String(pathFlag.Name))
				if err != nil {
					return err
				}
				fmt.Printf("purged %d variant(s)\n", res.Purged)
				return nil
			},
		},
		{
			Name:  "stats",
			Usage: "print runtime counters",
			Action: func(c *cli.Context) error {
				client := api.NewClient(c.GlobalString(serverFlag.Name))
				st, err := client.GetStats()
				if err != nil {
					return err
				}
				fmt.Printf("lookups=%d hits=%d misses=%d passes=%d fetches=%d errors=%d uptime=%ds\n",
					st.Lookups, st.Hits, st.Misses, st.Passes, st.Fetches, st.Errors, st.Uptime)
				return nil
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
