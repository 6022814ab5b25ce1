// Command jwtctl is the littlejwt command-line tool.
package main

import (
	"github.com/turtacn/littlejwt/cmd/cli"
)

func main() {
	cli.Execute()
}
