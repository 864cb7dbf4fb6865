package models

// DiscoveredDevice is one candidate host surfaced by the Scanner/Fingerprinter
// pipeline (spec section 3). macAddress is a pointer because it is legitimately
// absent rather than merely empty.
type DiscoveredDevice struct {
	IPAddress   string  `json:"ipAddress"`
	Hostname    string  `json:"hostname"`
	MACAddress  *string `json:"macAddress"`
	IsOpenWrt   bool    `json:"isOpenWrt"`
	Note        string  `json:"note,omitempty"`
	SSHSuccess  bool    `json:"sshSuccess"`
	Exists      bool    `json:"exists"`
}
