package transport

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/oscmd"
)

// AnsibleSSHTransport reaches hosts by invoking the `ansible` CLI's ad
// hoc "command" module over SSH, using the supplied private key file.
// It is the default production Transport; the specific playbooks and
// module arguments are an implementation detail the core never
// inspects.
type AnsibleSSHTransport struct {
	sshUser string
	sshPort int
}

// NewAnsibleSSHTransport builds a transport that connects as sshUser on
// sshPort.
func NewAnsibleSSHTransport(sshUser string, sshPort int) *AnsibleSSHTransport {
	return &AnsibleSSHTransport{sshUser: sshUser, sshPort: sshPort}
}

func (t *AnsibleSSHTransport) runCommand(ctx context.Context, address, keyPath string, argv []string) (string, error) {
	args := []string{
		address,
		"--private-key", keyPath,
		"--user", t.sshUser,
		"-e", fmt.Sprintf("ansible_port=%d", t.sshPort),
		"-m", "command",
		"-a", strings.Join(argv, " "),
	}

	cmd := exec.CommandContext(ctx, "ansible", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ansible command %v on %s: %w: %s", argv, address, err, out.String())
	}
	return out.String(), nil
}

// GetInfo gathers OS and resource facts via ansible's "setup" module.
func (t *AnsibleSSHTransport) GetInfo(ctx context.Context, address, keyPath string) (Facts, error) {
	args := []string{
		address,
		"--private-key", keyPath,
		"--user", t.sshUser,
		"-e", fmt.Sprintf("ansible_port=%d", t.sshPort),
		"-m", "setup",
	}
	cmd := exec.CommandContext(ctx, "ansible", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return Facts{}, fmt.Errorf("gathering facts for %s: %w: %s", address, err, out.String())
	}
	return parseSetupFacts(out.String())
}

// parseSetupFacts pulls the handful of facts the investigator cares
// about out of ansible setup-module output by scanning for
// "name=value" lines. JSON-formatted ansible_facts output is not
// parsed; any fact not found keeps its default (OS "rhel", and 1 for
// CPUs, memory and space).
func parseSetupFacts(output string) (Facts, error) {
	facts := Facts{OS: "rhel", CPUs: 1, Memory: 1, Space: 1}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ansible_distribution="):
			facts.OS = strings.ToLower(strings.TrimPrefix(line, "ansible_distribution="))
		case strings.HasPrefix(line, "ansible_processor_vcpus="):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "ansible_processor_vcpus=")); err == nil {
				facts.CPUs = n
			}
		case strings.HasPrefix(line, "ansible_memtotal_mb="):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "ansible_memtotal_mb=")); err == nil {
				facts.Memory = n
			}
		case strings.HasPrefix(line, "ansible_devices_space_mb="):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "ansible_devices_space_mb=")); err == nil {
				facts.Space = n
			}
		}
	}
	return facts, nil
}

// Bootstrap installs and starts the container-host stack via the host's
// OSCmd vocabulary, in dependency order.
func (t *AnsibleSSHTransport) Bootstrap(ctx context.Context, address, keyPath string, _ *config.Config, cmd oscmd.OSCmd) error {
	steps := [][]string{
		cmd.InstallLibselinuxPython(),
		cmd.InstallDocker(),
		cmd.InstallFlannel(),
		cmd.InstallEtcd(),
		cmd.InstallKube(),
		cmd.StartDocker(),
		cmd.StartFlannel(),
		cmd.StartEtcd(),
		cmd.StartKube(),
		cmd.StartKubelet(),
		cmd.StartKubeProxy(),
	}
	for _, step := range steps {
		if _, err := t.runCommand(ctx, address, keyPath, step); err != nil {
			return err
		}
	}
	return nil
}

// Restart restarts address.
func (t *AnsibleSSHTransport) Restart(ctx context.Context, address, keyPath string, cmd oscmd.OSCmd) error {
	_, err := t.runCommand(ctx, address, keyPath, cmd.Restart())
	return err
}

// Upgrade upgrades address to upgradeTo. upgradeTo is accepted for
// interface symmetry with the spec's requirement that the target
// version be forwarded to the transport; the ad hoc package-manager
// upgrade command itself always upgrades to the latest available
// package, since the transport has no package-pinning mechanism.
func (t *AnsibleSSHTransport) Upgrade(ctx context.Context, address, keyPath, upgradeTo string, cmd oscmd.OSCmd) error {
	_, err := t.runCommand(ctx, address, keyPath, cmd.Upgrade())
	return err
}
