package main

import (
	"context"
	"fmt"
	"os"

	"github.com/local/pdftools/internal/cli"
	"github.com/local/pdftools/internal/logger"
)

func main() {
	err := cli.New().Execute(context.Background())
	logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
