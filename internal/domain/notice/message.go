package notice

type MessageType string

const (
	MessageNotice   MessageType = "notice"
	MessageNavigate MessageType = "navigate"
)

// Message is one frame pushed to a browser context.
type Message struct {
	Type   MessageType `json:"type"`
	Notice *Notice     `json:"notice,omitempty"`
	Path   string      `json:"path,omitempty"`
}

func NoticeMessage(n Notice) Message {
	return Message{Type: MessageNotice, Notice: &n}
}

// NavigateMessage tells the client to load path, which may be absolute.
func NavigateMessage(path string) Message {
	return Message{Type: MessageNavigate, Path: path}
}
