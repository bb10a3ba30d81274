package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// OverwriteAction represents the user choice when a transfer target
// already exists.
type OverwriteAction int

const (
	OverwriteOnce OverwriteAction = iota
	OverwriteAll
	SkipOnce
	SkipAll
	OverwriteAbort
)

// promptOverwrite asks what to do when name already exists at dest.
func promptOverwrite(name, dest string) (OverwriteAction, error) {
	fmt.Printf("\n⚠️  '%s' already exists at '%s'.\n", name, dest)
	fmt.Println("What would you like to do?")
	fmt.Println("  1. Overwrite (once) - Replace this entry, prompt for next")
	fmt.Println("  2. Overwrite (do for all) - Replace all existing entries")
	fmt.Println("  3. Skip (once) - Keep this entry, prompt for next")
	fmt.Println("  4. Skip (do for all) - Keep all existing entries")
	fmt.Println("  5. Abort - Stop the transfer")
	fmt.Print("Choose [1-5]: ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return OverwriteAbort, err
	}

	input = strings.TrimSpace(input)
	switch input {
	case "1":
		return OverwriteOnce, nil
	case "2":
		return OverwriteAll, nil
	case "3":
		return SkipOnce, nil
	case "4":
		return SkipAll, nil
	case "5":
		return OverwriteAbort, nil
	default:
		fmt.Println("Invalid choice, please try again.")
		return promptOverwrite(name, dest)
	}
}

// promptConfirm asks a yes/no question for destructive operations.
func promptConfirm(question string) bool {
	fmt.Printf("%s (yes/no): ", question)
	var response string
	fmt.Scanln(&response)
	return strings.EqualFold(strings.TrimSpace(response), "yes")
}
