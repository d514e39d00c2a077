package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/docharvest/internal/cli"
)

func main() {
	err := cli.NewRootCmd().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err.Error())
	if errors.Is(err, cli.ErrUsage) {
		os.Exit(2)
	}
	os.Exit(1)
}
