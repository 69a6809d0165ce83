package main

import (
	"fmt"
	"os"

	"github.com/markbates/grift/grift"

	// Import bayeuxkit to register grift tasks
	_ "github.com/johnjansen/bayeuxkit"
)

func main() {
	// Check if we have any arguments
	if len(os.Args) < 2 {
		fmt.Println("Usage: grift [namespace:]task [args...]")
		fmt.Println("\nAvailable tasks:")
		fmt.Println("  bayeux:migrate        - Apply all pending audit log migrations")
		fmt.Println("  bayeux:migrate:status - Show audit log migration status")
		fmt.Println("  bayeux:stats          - Show broker registry statistics")
		fmt.Println("  bayeux:publish        - Publish a JSON payload to a channel")
		fmt.Println("  jobs:worker           - Start the background job worker")
		fmt.Println("  jobs:report-stats     - Enqueue a one-off stats report job")
		fmt.Println("  jobs:audit-vacuum     - Enqueue an audit log vacuum job")
		fmt.Println("  jobs:stats            - Show job runtime status")
		fmt.Println("")
		fmt.Println("Use 'grift list' to see all available tasks")
		os.Exit(1)
	}

	// Handle special commands
	if os.Args[1] == "list" {
		fmt.Println("Available Grift Tasks:")
		fmt.Println("======================")

		// List all registered tasks
		tasks := grift.List()
		if len(tasks) == 0 {
			fmt.Println("No tasks registered")
		} else {
			for _, task := range tasks {
				fmt.Printf("  %s\n", task)
			}
		}
		os.Exit(0)
	}

	// Parse task name and arguments
	taskName := os.Args[1]
	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	// Create grift context
	ctx := grift.NewContext(taskName)
	ctx.Args = args

	// Run the task
	err := grift.Run(taskName, ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running task %s: %v\n", taskName, err)
		os.Exit(1)
	}
}
