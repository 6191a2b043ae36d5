package main

import (
	"fmt"
	"os"

	"github.com/vergate/vergate/internal/rpc"
)

func main() {
	secret, err := rpc.GenerateSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Shared secret: %s\n", secret)
	fmt.Println("\nThe daemon generates its own secret on startup; use this when")
	fmt.Println("pre-provisioning a connection descriptor by hand:")
	fmt.Printf("  {\"endpoint_address\": \".vergate.sock\", \"shared_secret\": \"%s\"}\n", secret)
}
