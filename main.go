package main

import (
	"github.com/evalscribe/evalscribe/cmd"
	"github.com/evalscribe/evalscribe/internal/logging"
)

func main() {
	defer logging.RecoverPanic("main", nil)

	cmd.Execute()
}
