// backstage-req sends authenticated requests to the backstage admin API from
// the command line, using the same pipeline as the console: deduplication,
// single-flight token refresh and business code classification.
package main

import (
	"fmt"
	"os"

	request "github.com/zhangxinping666/admin-mp-sub001"
	"github.com/zhangxinping666/admin-mp-sub001/internal/commands"
)

// Version information (set by the release build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if version != "dev" {
		request.Version = version
	}
	request.GitCommit = commit
	request.BuildDate = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
