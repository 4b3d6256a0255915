//go:build windows

package command

func shellInvocation(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}
