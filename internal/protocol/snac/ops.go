package snac

import "fmt"

const (
	FamilyGeneral        uint16 = 0x0001
	FamilyLocation       uint16 = 0x0002
	FamilyBuddyList      uint16 = 0x0003
	FamilyICBM           uint16 = 0x0004
	FamilyInvitation     uint16 = 0x0006
	FamilyAdministrative uint16 = 0x0007
	FamilyPopupNotice    uint16 = 0x0008
	FamilyPrivacy        uint16 = 0x0009
	FamilyUserLookup     uint16 = 0x000A
	FamilyUsageStats     uint16 = 0x000B
	FamilySSI            uint16 = 0x0013
	FamilyOffline        uint16 = 0x0015
	FamilyAuth           uint16 = 0x0017
)

const (
	GeneralClientReady          uint16 = 0x0002
	GeneralSupportedFamilies    uint16 = 0x0003
	GeneralServiceXferRequest   uint16 = 0x0004
	GeneralRateInfoRequest      uint16 = 0x0006
	GeneralRateInfoResponse     uint16 = 0x0007
	GeneralSelfInfoRequest      uint16 = 0x000E
	GeneralSelfInfoResponse     uint16 = 0x000F
	GeneralClientFamilyVersions uint16 = 0x0017
	GeneralServerFamilyVersions uint16 = 0x0018

	LocationRightsRequest uint16 = 0x0002
	LocationRightsReply   uint16 = 0x0003

	BuddyListRightsRequest uint16 = 0x0002
	BuddyListRightsReply   uint16 = 0x0003

	ICBMParamRequest uint16 = 0x0004
	ICBMParamReply   uint16 = 0x0005
	ICBMSend         uint16 = 0x0006
	ICBMReceive      uint16 = 0x0007

	PrivacyRightsRequest uint16 = 0x0002
	PrivacyRightsReply   uint16 = 0x0003

	UsageStatsClientReport uint16 = 0x0003

	SSILimitsRequest     uint16 = 0x0002
	SSILimitsResponse    uint16 = 0x0003
	SSIBuddyListRequest  uint16 = 0x0004
	SSIBuddyListResponse uint16 = 0x0006

	AuthRegistrationRefused uint16 = 0x0001
	AuthLoginRequest        uint16 = 0x0002
	AuthLoginReply          uint16 = 0x0003
	AuthRequestNewUIN       uint16 = 0x0004
	AuthNewUINResponse      uint16 = 0x0005
	AuthMD5Request          uint16 = 0x0006
	AuthMD5Response         uint16 = 0x0007
)

// Op is the closed set of client requests the services act on. Anything
// else classifies as OpUnsupported.
type Op int

const (
	OpUnsupported Op = iota
	OpAuthMD5Request
	OpAuthLoginRequest
	OpClientReady
	OpClientFamilyVersions
	OpRateInfoRequest
	OpSelfInfoRequest
	OpLocationRightsRequest
	OpBuddyListRightsRequest
	OpICBMParamRequest
	OpICBMSend
	OpPrivacyRightsRequest
	OpClientStatsReport
	OpSSILimitsRequest
	OpSSIBuddyListRequest
)

type key struct{ family, subtype uint16 }

var ops = map[key]Op{
	{FamilyAuth, AuthMD5Request}:                 OpAuthMD5Request,
	{FamilyAuth, AuthLoginRequest}:               OpAuthLoginRequest,
	{FamilyGeneral, GeneralClientReady}:          OpClientReady,
	{FamilyGeneral, GeneralClientFamilyVersions}: OpClientFamilyVersions,
	{FamilyGeneral, GeneralRateInfoRequest}:      OpRateInfoRequest,
	{FamilyGeneral, GeneralSelfInfoRequest}:      OpSelfInfoRequest,
	{FamilyLocation, LocationRightsRequest}:      OpLocationRightsRequest,
	{FamilyBuddyList, BuddyListRightsRequest}:    OpBuddyListRightsRequest,
	{FamilyICBM, ICBMParamRequest}:               OpICBMParamRequest,
	{FamilyICBM, ICBMSend}:                       OpICBMSend,
	{FamilyPrivacy, PrivacyRightsRequest}:        OpPrivacyRightsRequest,
	{FamilyUsageStats, UsageStatsClientReport}:   OpClientStatsReport,
	{FamilySSI, SSILimitsRequest}:                OpSSILimitsRequest,
	{FamilySSI, SSIBuddyListRequest}:             OpSSIBuddyListRequest,
}

// Classify maps a numeric pair to its operation.
func Classify(family, subtype uint16) Op {
	if op, ok := ops[key{family, subtype}]; ok {
		return op
	}
	return OpUnsupported
}

var opNames = [...]string{
	OpUnsupported:            "unsupported",
	OpAuthMD5Request:         "auth.md5_request",
	OpAuthLoginRequest:       "auth.login_request",
	OpClientReady:            "general.client_ready",
	OpClientFamilyVersions:   "general.client_family_versions",
	OpRateInfoRequest:        "general.rate_info_request",
	OpSelfInfoRequest:        "general.self_info_request",
	OpLocationRightsRequest:  "location.rights_request",
	OpBuddyListRightsRequest: "buddylist.rights_request",
	OpICBMParamRequest:       "icbm.param_request",
	OpICBMSend:               "icbm.send",
	OpPrivacyRightsRequest:   "privacy.rights_request",
	OpClientStatsReport:      "usage_stats.client_report",
	OpSSILimitsRequest:       "ssi.limits_request",
	OpSSIBuddyListRequest:    "ssi.buddy_list_request",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}
