package protocol

// Command is the 4 byte message command that opens every OOB header, e.g.
// "PUB " or "PERS".
type Command [4]byte

// Commands a device commonly sends to a router. The router treats the
// command as opaque.
var (
	CmdPublish   = MustCommand("PUB ")
	CmdPersist   = MustCommand("PERS")
	CmdSubscribe = MustCommand("SUBS")
)

// ParseCommand converts s into a Command. s must be exactly 4 bytes long;
// callers pad or truncate before calling.
func ParseCommand(s string) (Command, error) {
	var cmd Command

	if len(s) != len(cmd) {
		return cmd, NewError(CodeUsage, "parseCommand",
			"command %q must be exactly %d bytes", s, len(cmd))
	}

	copy(cmd[:], s)
	return cmd, nil
}

// MustCommand is like ParseCommand but panics on a bad command. It is meant
// for package level constants.
func MustCommand(s string) Command {
	cmd, err := ParseCommand(s)
	if err != nil {
		panic(err)
	}

	return cmd
}

func (c Command) String() string {
	return string(c[:])
}
