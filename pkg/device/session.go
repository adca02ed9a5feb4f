package device

// Session is the command surface the replay core needs from a device. Every
// call blocks until the transport returns; none can be cancelled once issued.
type Session interface {
	// Exec runs a shell command and returns its output.
	Exec(cmd string) (string, error)
	// ExecAsync starts a shell command without waiting for it.
	ExecAsync(cmd string) error
	// Push copies a host file to the device.
	Push(local, remote string) error
	// Pull copies a device file to the host. ok is false if the file did not
	// appear on the device in time.
	Pull(remote, local string) (ok bool, err error)
	// IsConnected reports whether the device answers.
	IsConnected() bool
	// FileExists reports whether path exists on the device.
	FileExists(path string) bool
}

// Installer installs packages for a device user.
type Installer interface {
	Install(apkPath, user string) error
}
