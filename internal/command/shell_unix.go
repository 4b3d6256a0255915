//go:build linux || darwin

package command

func shellInvocation(command string) (string, []string) {
	return "/bin/sh", []string{"-c", command}
}
