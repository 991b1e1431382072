package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/server"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(routesCmd)
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the routes served by the relay",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := server.NewServer(config.Default())
		cobra.CheckErr(err)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tDESCRIPTION")
		fmt.Fprintln(w, "GET\t/\thomepage redirect")
		fmt.Fprintln(w, "GET\t/health\thealth check")
		for _, route := range s.Routes() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", route.Method, route.Path, route.Name)
		}
		cobra.CheckErr(w.Flush())
	},
}
