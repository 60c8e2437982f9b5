package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runDownload(args[1:])
	case "update-timezone":
		return runUpdateTimezone(args[1:])
	case "status":
		return runStatus(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("snap-memories-downloader: resumable Snapchat memories export downloader")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  snap-memories-downloader doctor")
	fmt.Println("  snap-memories-downloader run --manifest memories_history.html --output memories")
	fmt.Println("  snap-memories-downloader status --output memories")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run              download export entries and checkpoint progress after each one")
	fmt.Println("  update-timezone  re-embed timestamps and geotags into already-downloaded media")
	fmt.Println("  status           ledger rollup; --interactive opens a record browser")
	fmt.Println("  doctor           run dependency and filesystem preflight checks")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - An interrupted run resumes where it left off: rerun with the same --output")
	fmt.Println("  - Export links expire roughly a week after the export is generated;")
	fmt.Println("    request a fresh export and rerun with --retry-failed if links went stale")
}
