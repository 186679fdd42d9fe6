package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/scttfrdmn/barkuni/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutputFormat(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("invalid --output %q: must be text, json or yaml", format)
	}
}

// writeResult renders a ready result to stdout. Failures always get the error
// lines on stderr; structured formats also put the full result on stdout.
func writeResult(stdout, stderr io.Writer, format string, result *types.ProvisionResult) error {
	var err error
	switch format {
	case outputJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(result)
	case outputYAML:
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err = enc.Encode(result); err == nil {
			err = enc.Close()
		}
	default:
		if result.Succeeded() {
			return writeText(stdout, result)
		}
	}
	if err != nil {
		return err
	}

	if !result.Succeeded() {
		return writeFailure(stderr, result)
	}
	return nil
}

func writeText(w io.Writer, result *types.ProvisionResult) error {
	var b strings.Builder
	b.WriteString("\nInstance created successfully!\n")
	fmt.Fprintf(&b, "Instance ID: %s\n", result.InstanceID)
	fmt.Fprintf(&b, "State: %s\n", result.StateName)
	if result.PublicAddress != "" {
		fmt.Fprintf(&b, "Public IP: %s\n", result.PublicAddress)
	}
	fmt.Fprintf(&b, "Private IP: %s\n", result.PrivateAddress)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeFailure(w io.Writer, result *types.ProvisionResult) error {
	var b strings.Builder
	if result.Error != nil {
		fmt.Fprintf(&b, "Error creating instance: %s\n", result.Error)
	} else {
		b.WriteString("Error creating instance: unknown failure\n")
	}
	if result.InstanceID != "" {
		fmt.Fprintf(&b, "Instance %s was created and is still running; terminate it with: terminate-instance %s\n",
			result.InstanceID, result.InstanceID)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeDryRun prints the launch spec that would be sent to the provider
func writeDryRun(w io.Writer, format, provider string, spec types.LaunchSpec) error {
	plan := struct {
		Provider string           `json:"provider" yaml:"provider"`
		Spec     types.LaunchSpec `json:"spec" yaml:"spec"`
	}{provider, spec}

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case outputYAML:
		return yaml.NewEncoder(w).Encode(plan)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DRY RUN: would launch on %s\n", provider)
	fmt.Fprintf(&b, "Subnet: %s\n", spec.SubnetID)
	fmt.Fprintf(&b, "Image: %s\n", spec.ImageID)
	fmt.Fprintf(&b, "Instance type: %s\n", spec.InstanceType)
	if spec.KeyName != "" {
		fmt.Fprintf(&b, "Key name: %s\n", spec.KeyName)
	}
	if len(spec.SecurityGroupIDs) > 0 {
		fmt.Fprintf(&b, "Security groups: %s\n", strings.Join(spec.SecurityGroupIDs, ", "))
	}
	for _, key := range spec.SortedTagKeys() {
		fmt.Fprintf(&b, "Tag: %s=%s\n", key, spec.Tags[key])
	}
	_, err := io.WriteString(w, b.String())
	return err
}
