// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"review-workers/pkg/registry"
)

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		cmd := flag.NewFlagSet("list", flag.ExitOnError)
		path := cmd.String("path", "", "Path to registry file (default: built-in catalog)")
		_ = cmd.Parse(os.Args[2:])

		reg := mustLoad(*path)
		for _, a := range reg.Activities {
			fmt.Printf("%-24s %-12s %-10s timeout=%s retries=%d\n", a.TaskType, a.Category, a.ImplementationStatus, a.Timeout, a.Retries)
		}

	case "validate":
		cmd := flag.NewFlagSet("validate", flag.ExitOnError)
		path := cmd.String("path", "pkg/registry/activities.json", "Path to registry file")
		_ = cmd.Parse(os.Args[2:])

		reg := mustLoad(*path)
		fmt.Printf("Registry %s is valid (%d activities)\n", *path, len(reg.Activities))

	case "set-status":
		cmd := flag.NewFlagSet("set-status", flag.ExitOnError)
		path := cmd.String("path", "pkg/registry/activities.json", "Path to registry file")
		id := cmd.String("id", "", "Activity ID to update")
		status := cmd.String("status", "", "planned, in-progress, completed or verified")
		_ = cmd.Parse(os.Args[2:])

		if *id == "" || *status == "" {
			fmt.Println("Error: id and status are required for set-status.")
			cmd.Usage()
			os.Exit(1)
		}

		reg := mustLoad(*path)
		var found *registry.Activity
		for i := range reg.Activities {
			if reg.Activities[i].ID == *id {
				found = &reg.Activities[i]
			}
		}
		if found == nil {
			fmt.Printf("Error: activity %q not found\n", *id)
			os.Exit(1)
		}
		found.ImplementationStatus = *status
		if err := reg.Save(*path); err != nil {
			fmt.Printf("Error saving registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated %s: status=%s\n", *id, *status)

	default:
		help()
		os.Exit(1)
	}
}

func mustLoad(path string) *registry.ActivityRegistry {
	var (
		reg *registry.ActivityRegistry
		err error
	)
	if path == "" {
		reg, err = registry.Default()
	} else {
		reg, err = registry.LoadRegistry(path)
	}
	if err != nil {
		fmt.Printf("Error loading registry: %v\n", err)
		os.Exit(1)
	}
	return reg
}

func help() {
	fmt.Println(strings.TrimSpace(`
Usage: registry-updater <command> [flags]

Commands:
  list        Print the activity catalog
  validate    Check a registry file for duplicate or malformed activities
  set-status  Change the implementation status of one activity
`))
}
