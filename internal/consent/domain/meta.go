package domain

// Channel is the medium through which a consent change arrived.
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "EMAIL"
	ChannelWeb      Channel = "WEB"
	ChannelAPI      Channel = "API"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail, ChannelWeb, ChannelAPI:
		return true
	}
	return false
}

// Source is the subsystem that originated a consent change.
type Source string

const (
	SourceMerchantDashboard Source = "MERCHANT_DASHBOARD"
	SourcePreferenceCenter  Source = "PREFERENCE_CENTER"
	SourceKeywordReply      Source = "KEYWORD_REPLY"
	SourceCheckout          Source = "CHECKOUT"
	SourceAPI               Source = "API"
	SourceSystem            Source = "SYSTEM"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceMerchantDashboard, SourcePreferenceCenter, SourceKeywordReply, SourceCheckout, SourceAPI, SourceSystem:
		return true
	}
	return false
}

// UpdateMeta describes who and what caused a consent change. Reason, Actor and IP are
// optional and recorded in the compliance event metadata.
type UpdateMeta struct {
	Channel Channel
	Source  Source
	Reason  string
	Actor   string
	IP      string
}
