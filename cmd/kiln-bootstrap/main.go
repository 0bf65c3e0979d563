// kiln-bootstrap is PID 1 inside every runner image. The gateway invokes
// it with the language flag and trailing user args; the full run spec
// arrives as one JSON object on stdin.
package main

import (
	"flag"
	"os"

	"github.com/kilnrun/kiln/pkg/bootstrap"
	"github.com/kilnrun/kiln/pkg/types"
)

func main() {
	language := flag.String("language", "", "language runtime to execute")
	flag.Parse()

	os.Exit(bootstrap.Run(bootstrap.Options{
		Language: types.Language(*language),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}))
}
