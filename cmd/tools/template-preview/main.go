// cmd/tools/template-preview/main.go
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/validation"
	templateregistry "notification-relay/internal/workers/infrastructure/template-registry"
)

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	// Render command flags
	templateID := renderCmd.String("template", "", "Template ID (e.g., booking_confirmation)")
	dataFile := renderCmd.String("data", "", "Path to a JSON object with the placeholder values (- for stdin)")
	subjectOnly := renderCmd.Bool("subject", false, "Print only the rendered subject")
	recipient := renderCmd.String("to", "", "Recipient to print in the preview header")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	registry, err := templateregistry.New(logger.NewNoOpLogger())
	if err != nil {
		fmt.Printf("Error loading templates: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		for _, id := range registry.IDs() {
			tmpl, _ := registry.Resolve(id)
			fmt.Printf("%-24s %s\n", id, tmpl.Subject)
			fmt.Printf("%-24s placeholders: %s\n", "", strings.Join(tmpl.Placeholders, ", "))
		}

	case "render":
		renderCmd.Parse(os.Args[2:])
		if *templateID == "" || *dataFile == "" {
			fmt.Println("Error: template and data are required for render.")
			renderCmd.Usage()
			os.Exit(1)
		}
		if *recipient != "" && !validation.ValidateEmail(*recipient) {
			fmt.Printf("Error: invalid recipient %q\n", *recipient)
			os.Exit(1)
		}
		msg, err := render(registry, *templateID, *dataFile)
		if err != nil {
			fmt.Printf("Render failed: %v\n", err)
			if fields, ok := missingFields(err); ok {
				fmt.Printf("Missing or invalid fields: %s\n", strings.Join(fields, ", "))
			}
			os.Exit(1)
		}
		if *subjectOnly {
			fmt.Println(msg.Subject)
			return
		}
		if *recipient != "" {
			fmt.Printf("To: %s\n", *recipient)
		}
		fmt.Printf("Subject: %s\n\n%s\n", msg.Subject, msg.HTMLBody)

	case "check":
		checkCmd.Parse(os.Args[2:])
		if err := check(registry); err != nil {
			fmt.Printf("Template check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Template check passed (%d templates).\n", len(registry.IDs()))

	case "help":
		fallthrough
	default:
		help()
	}
}

func render(registry *templateregistry.Registry, id, path string) (*templateregistry.RenderedMessage, error) {
	tmpl, err := registry.Resolve(id)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	var data map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid data file: %w", err)
	}

	return registry.Render(tmpl, data)
}

// check renders every template with sample values and fails on leftover markers.
func check(registry *templateregistry.Registry) error {
	for _, id := range registry.IDs() {
		tmpl, err := registry.Resolve(id)
		if err != nil {
			return err
		}
		sample := make(map[string]interface{}, len(tmpl.Placeholders))
		for _, p := range tmpl.Placeholders {
			sample[p] = "sample"
		}
		msg, err := registry.Render(tmpl, sample)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		for _, p := range tmpl.Placeholders {
			if strings.Contains(msg.HTMLBody, "{"+p+"}") || strings.Contains(msg.Subject, "{"+p+"}") {
				return fmt.Errorf("%s: placeholder %s left unrendered", id, p)
			}
		}
	}
	return nil
}

func missingFields(err error) ([]string, bool) {
	if !errors.HasCode(err, errors.ErrCodeRenderFailure) {
		return nil, false
	}
	fields, ok := errors.AsStandardError(err).Metadata["fields"].([]string)
	return fields, ok
}

func help() {
	fmt.Println("Usage: template-preview <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  list    List embedded templates and their placeholders")
	fmt.Println("  render  Render a template with JSON data")
	fmt.Println("  check   Render every template with sample values")
	fmt.Println("  help    Show this help message")
	fmt.Println("\nExamples:")
	fmt.Println("  template-preview render -template booking_confirmation -data booking.json")
	fmt.Println("  echo '{\"name\":\"Jean\",\"date\":\"2024-01-02\",\"time_slot\":\"9h-12h\"}' | template-preview render -template appointment_reminder -data -")
}
