package oscmd

import "testing"

var allMethods = []string{
	"Restart", "Upgrade", "InstallLibselinuxPython", "InstallDocker",
	"InstallFlannel", "InstallEtcd", "InstallKube", "StartFlannel",
	"StartDocker", "StartEtcd", "StartKube", "StartKubelet", "StartKubeProxy",
}

func callAll(t *testing.T, cmd OSCmd) {
	t.Helper()
	calls := map[string]func() []string{
		"Restart":                 cmd.Restart,
		"Upgrade":                 cmd.Upgrade,
		"InstallLibselinuxPython": cmd.InstallLibselinuxPython,
		"InstallDocker":           cmd.InstallDocker,
		"InstallFlannel":          cmd.InstallFlannel,
		"InstallEtcd":             cmd.InstallEtcd,
		"InstallKube":             cmd.InstallKube,
		"StartFlannel":            cmd.StartFlannel,
		"StartDocker":             cmd.StartDocker,
		"StartEtcd":               cmd.StartEtcd,
		"StartKube":               cmd.StartKube,
		"StartKubelet":            cmd.StartKubelet,
		"StartKubeProxy":          cmd.StartKubeProxy,
	}
	for _, name := range allMethods {
		tokens := calls[name]()
		if len(tokens) == 0 {
			t.Errorf("%s() returned an empty command", name)
		}
	}
}

func TestRHELOSCmdCommands(t *testing.T) {
	cmd, err := Get("rhel")
	if err != nil {
		t.Fatalf("Get(rhel): %v", err)
	}
	callAll(t, cmd)
}

func TestFedoraOSCmdCommands(t *testing.T) {
	cmd, err := Get("fedora")
	if err != nil {
		t.Fatalf("Get(fedora): %v", err)
	}
	callAll(t, cmd)
}

func TestGetUnknownOS(t *testing.T) {
	_, err := Get("plan9")
	if err == nil {
		t.Fatal("expected an error for an unregistered OS")
	}
	if _, ok := err.(*UnknownOS); !ok {
		t.Fatalf("expected *UnknownOS, got %T", err)
	}
}
