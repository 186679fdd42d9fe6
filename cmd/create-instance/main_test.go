package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/scttfrdmn/barkuni/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readyResult(publicIP string) *types.ProvisionResult {
	return &types.ProvisionResult{
		InstanceID:     "i-001",
		FinalState:     types.StateReady,
		StateName:      "running",
		PublicAddress:  publicIP,
		PrivateAddress: "10.0.0.5",
		Attempts:       1,
		Duration:       2 * time.Second,
	}
}

func TestWriteResult_TextReady(t *testing.T) {
	tests := []struct {
		name     string
		publicIP string
		expected string
	}{
		{
			name:     "private only",
			expected: "\nInstance created successfully!\nInstance ID: i-001\nState: running\nPrivate IP: 10.0.0.5\n",
		},
		{
			name:     "with public ip",
			publicIP: "3.4.5.6",
			expected: "\nInstance created successfully!\nInstance ID: i-001\nState: running\nPublic IP: 3.4.5.6\nPrivate IP: 10.0.0.5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.NoError(t, writeResult(&stdout, &stderr, outputText, readyResult(tt.publicIP)))
			assert.Equal(t, tt.expected, stdout.String())
			assert.Empty(t, stderr.String())
		})
	}
}

func TestWriteResult_TextFailure(t *testing.T) {
	t.Run("launch failure", func(t *testing.T) {
		result := &types.ProvisionResult{
			FinalState: types.StateFailed,
			Error:      types.NewProvisionError(types.ErrLaunchFailure, errors.New("InvalidSubnetID")),
		}

		var stdout, stderr bytes.Buffer
		require.NoError(t, writeResult(&stdout, &stderr, outputText, result))
		assert.Empty(t, stdout.String())
		assert.Equal(t, "Error creating instance: LaunchFailure: InvalidSubnetID\n", stderr.String())
	})

	t.Run("tagging failure names the instance", func(t *testing.T) {
		result := &types.ProvisionResult{
			InstanceID: "i-002",
			FinalState: types.StateFailed,
			Error:      types.NewProvisionError(types.ErrTaggingFailure, errors.New("UnauthorizedOperation: denied")),
		}

		var stdout, stderr bytes.Buffer
		require.NoError(t, writeResult(&stdout, &stderr, outputText, result))
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "Error creating instance: TaggingFailure: UnauthorizedOperation: denied\n")
		assert.Contains(t, stderr.String(), "Instance i-002 was created")
	})
}

func TestWriteResult_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, writeResult(&stdout, &stderr, outputJSON, readyResult("3.4.5.6")))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, "i-001", decoded["instance_id"])
	assert.Equal(t, "ready", decoded["final_state"])
	assert.Equal(t, "3.4.5.6", decoded["public_ip"])
	assert.NotContains(t, decoded, "error")
	assert.Empty(t, stderr.String())
}

func TestWriteResult_YAMLFailure(t *testing.T) {
	result := &types.ProvisionResult{
		InstanceID: "i-003",
		FinalState: types.StateFailed,
		StateName:  "pending",
		Error:      types.NewProvisionError(types.ErrConvergenceTimeout, errors.New("last state pending")),
		Attempts:   3,
	}

	var stdout, stderr bytes.Buffer
	require.NoError(t, writeResult(&stdout, &stderr, outputYAML, result))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, "failed", decoded["final_state"])
	assert.Equal(t, 3, decoded["describe_attempts"])
	errBlock, ok := decoded["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ConvergenceTimeout", errBlock["kind"])

	assert.Contains(t, stderr.String(), "Error creating instance: ConvergenceTimeout: last state pending")
}

func TestValidateOutputFormat(t *testing.T) {
	for _, format := range []string{"text", "json", "yaml"} {
		assert.NoError(t, validateOutputFormat(format))
	}
	assert.Error(t, validateOutputFormat("table"))
}

func TestSplitFields(t *testing.T) {
	assert.Equal(t, []string{"Name=web", "Env=prod", "Owners=a,b"},
		splitFields([]string{"Name=web Env=prod", "Owners=a,b"}))
	assert.Nil(t, splitFields(nil))
}

func TestRootCmd_DryRun(t *testing.T) {
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{
		"--subnet-id", "subnet-1",
		"--ami-id", "ami-1",
		"--security-groups", "sg-1,sg-2",
		"--security-groups", "sg-3",
		"--tags", "Name=web Env=prod",
		"--output", "json",
		"--dry-run",
	})

	require.NoError(t, cmd.Execute())

	var plan struct {
		Provider string           `json:"provider"`
		Spec     types.LaunchSpec `json:"spec"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &plan))
	assert.Equal(t, "aws", plan.Provider)
	assert.Equal(t, "subnet-1", plan.Spec.SubnetID)
	assert.Equal(t, "t2.micro", plan.Spec.InstanceType)
	assert.Equal(t, []string{"sg-1", "sg-2", "sg-3"}, plan.Spec.SecurityGroupIDs)
	assert.Equal(t, map[string]string{"Name": "web", "Env": "prod"}, plan.Spec.Tags)
}

func TestRootCmd_DryRunSpaceSeparatedLists(t *testing.T) {
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs(expandListFlags([]string{
		"--subnet-id", "subnet-1",
		"--ami-id", "ami-1",
		"--security-groups", "sg-1", "sg-2",
		"--tags", "env=test", "team=ops",
		"--output", "json",
		"--dry-run",
	}))

	require.NoError(t, cmd.Execute())

	var plan struct {
		Spec types.LaunchSpec `json:"spec"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &plan))
	assert.Equal(t, []string{"sg-1", "sg-2"}, plan.Spec.SecurityGroupIDs)
	assert.Equal(t, map[string]string{"env": "test", "team": "ops"}, plan.Spec.Tags)
}

func TestExpandListFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "bare values",
			args:     []string{"--tags", "a=1", "b=2", "--subnet-id", "s-1"},
			expected: []string{"--tags", "a=1", "--tags", "b=2", "--subnet-id", "s-1"},
		},
		{
			name:     "equals form",
			args:     []string{"--security-groups=sg-1", "sg-2"},
			expected: []string{"--security-groups=sg-1", "--security-groups", "sg-2"},
		},
		{
			name:     "quoted and repeated forms unchanged",
			args:     []string{"--tags", "a=1 b=2", "--tags", "c=3", "--dry-run"},
			expected: []string{"--tags", "a=1 b=2", "--tags", "c=3", "--dry-run"},
		},
		{
			name:     "other flags keep their value",
			args:     []string{"--key-name", "ops", "--region", "us-east-1"},
			expected: []string{"--key-name", "ops", "--region", "us-east-1"},
		},
		{
			name:     "terminator",
			args:     []string{"--tags", "a=1", "--", "b=2"},
			expected: []string{"--tags", "a=1", "--", "b=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandListFlags(tt.args))
		})
	}
}

func TestRootCmd_DryRunText(t *testing.T) {
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--subnet-id", "subnet-1", "--ami-id", "ami-1", "--provider", "hetzner", "--dry-run"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "DRY RUN: would launch on hetzner")
	assert.Contains(t, stdout.String(), "Instance type: t2.micro")
}

func TestRootCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing ami", args: []string{"--subnet-id", "subnet-1"}},
		{name: "bad tag", args: []string{"--subnet-id", "subnet-1", "--ami-id", "ami-1", "--tags", "novalue", "--dry-run"}},
		{name: "bad output", args: []string{"--subnet-id", "subnet-1", "--ami-id", "ami-1", "--output", "table", "--dry-run"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}
