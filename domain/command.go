package domain

// SendMessageCommand carries a send request once the sender is authenticated.
type SendMessageCommand struct {
	Sender          Identity
	ReceiverID      UserID `validate:"required,max=64,excludesall=:0x7C"`
	Content         string `validate:"max=4096,required_without=AttachmentID"`
	AttachmentID    string `validate:"omitempty,uuid"`
	Type            MessageType
	ClientMessageID string `validate:"omitempty,max=64,excludesall=:0x7C"`
}

type GetMessagesCommand struct {
	Viewer    UserID
	PartnerID UserID `validate:"required,max=64,excludesall=:0x7C"`
	Cursor    *string
	Limit     int `validate:"gte=0"`
}

type MarkReadCommand struct {
	Viewer        UserID
	CounterpartID UserID `validate:"required,max=64,excludesall=:0x7C"`
}

type AcknowledgeCommand struct {
	Receiver   UserID
	SenderID   UserID   `validate:"required,max=64,excludesall=:0x7C"`
	MessageIDs []string `validate:"required,min=1,max=500,dive,uuid"`
}
