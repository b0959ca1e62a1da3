package main

import (
	"context"
	"fmt"
	"os"

	"absence/internal/cli/routecheck"
)

func main() {
	if err := routecheck.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "routecheck:", err)
		os.Exit(1)
	}
}
