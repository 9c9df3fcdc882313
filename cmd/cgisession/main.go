// Command cgisession runs one of the bundled scripts as a CGI program, or
// serves all of them over HTTP for local development.
//
//	cgisession visits                # one CGI request from env + stdin
//	cgisession -serve :8080          # /cgi-bin/{visits,echo,posts}
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Morditux/cgisession/internal/app"
)

func main() {
	serve := flag.String("serve", "", "serve scripts over HTTP on this address instead of answering one CGI request")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-serve addr] [script]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := app.Run(app.Options{ServeAddr: *serve, Script: flag.Arg(0)}); err != nil {
		os.Exit(1)
	}
}
