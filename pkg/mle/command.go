package mle

// Command is the MLE command type carried in the first payload byte.
type Command uint8

// MLE commands.
const (
	CmdLinkRequest          Command = 0
	CmdLinkAccept           Command = 1
	CmdLinkAcceptAndRequest Command = 2
	CmdLinkReject           Command = 3
	CmdAdvertisement        Command = 4
	CmdUpdate               Command = 5
	CmdUpdateRequest        Command = 6
	CmdDataRequest          Command = 7
	CmdDataResponse         Command = 8
	CmdParentRequest        Command = 9
	CmdParentResponse       Command = 10
	CmdChildIDRequest       Command = 11
	CmdChildIDResponse      Command = 12
	CmdChildUpdateRequest   Command = 13
	CmdChildUpdateResponse  Command = 14
	CmdAnnounce             Command = 15
	CmdDiscoveryRequest     Command = 16
	CmdDiscoveryResponse    Command = 17
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdLinkRequest:
		return "LINK_REQUEST"
	case CmdLinkAccept:
		return "LINK_ACCEPT"
	case CmdLinkAcceptAndRequest:
		return "LINK_ACCEPT_AND_REQUEST"
	case CmdLinkReject:
		return "LINK_REJECT"
	case CmdAdvertisement:
		return "ADVERTISEMENT"
	case CmdUpdate:
		return "UPDATE"
	case CmdUpdateRequest:
		return "UPDATE_REQUEST"
	case CmdDataRequest:
		return "DATA_REQUEST"
	case CmdDataResponse:
		return "DATA_RESPONSE"
	case CmdParentRequest:
		return "PARENT_REQUEST"
	case CmdParentResponse:
		return "PARENT_RESPONSE"
	case CmdChildIDRequest:
		return "CHILD_ID_REQUEST"
	case CmdChildIDResponse:
		return "CHILD_ID_RESPONSE"
	case CmdChildUpdateRequest:
		return "CHILD_UPDATE_REQUEST"
	case CmdChildUpdateResponse:
		return "CHILD_UPDATE_RESPONSE"
	case CmdAnnounce:
		return "ANNOUNCE"
	case CmdDiscoveryRequest:
		return "DISCOVERY_REQUEST"
	case CmdDiscoveryResponse:
		return "DISCOVERY_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Thread protocol versions as carried in the Version TLV.
const (
	Version1_1 uint16 = 2
	Version1_2 uint16 = 3
	Version1_3 uint16 = 4
)

// Status TLV values.
const (
	StatusError uint8 = 1
)

// Scan mask bits of the Parent-Request Scan Mask TLV.
const (
	ScanMaskRouters uint8 = 0x80
	ScanMaskREEDs   uint8 = 0x40
)
