package snac

import "fmt"

// Family is one entry of the symbolic registry: its numeric code and the
// numeric codes of its named subtypes.
type Family struct {
	Code     uint16
	Subtypes map[string]uint16
}

// Registry maps human-readable family names to codes.
// See http://iserverd1.khstu.ru/oscar/families.html
var Registry = map[string]Family{
	"GENERAL": {Code: FamilyGeneral, Subtypes: map[string]uint16{
		"CLIENT_READY":           GeneralClientReady,
		"SUPPORTED_FAMILIES":     GeneralSupportedFamilies,
		"SERVICE_XFER_REQUEST":   GeneralServiceXferRequest,
		"RATE_INFO_REQUEST":      GeneralRateInfoRequest,
		"RATE_INFO_RESPONSE":     GeneralRateInfoResponse,
		"SELF_INFO_REQUEST":      GeneralSelfInfoRequest,
		"SELF_INFO_RESPONSE":     GeneralSelfInfoResponse,
		"CLIENT_FAMILY_VERSIONS": GeneralClientFamilyVersions,
		"SERVER_FAMILY_VERSIONS": GeneralServerFamilyVersions,
	}},
	"LOCATION": {Code: FamilyLocation, Subtypes: map[string]uint16{
		"LOCATION_RIGHTS_REQUEST": LocationRightsRequest,
		"LOCATION_RIGHTS_REPLY":   LocationRightsReply,
	}},
	"BUDDYLIST": {Code: FamilyBuddyList, Subtypes: map[string]uint16{
		"BUDDY_LIST_RIGHTS_REQUEST": BuddyListRightsRequest,
		"BUDDY_LIST_RIGHTS_REPLY":   BuddyListRightsReply,
	}},
	"ICBM": {Code: FamilyICBM, Subtypes: map[string]uint16{
		"ICBM_PARAM_REQUEST": ICBMParamRequest,
		"ICBM_PARAM_REPLY":   ICBMParamReply,
		"SEND_ICBM":          ICBMSend,
		"RECEIVE_ICBM":       ICBMReceive,
	}},
	"INVITATION":     {Code: FamilyInvitation, Subtypes: map[string]uint16{}},
	"ADMINISTRATIVE": {Code: FamilyAdministrative, Subtypes: map[string]uint16{}},
	"POPUP_NOTICE":   {Code: FamilyPopupNotice, Subtypes: map[string]uint16{}},
	"PRIVACY_MGMT": {Code: FamilyPrivacy, Subtypes: map[string]uint16{
		"PRIVACY_RIGHTS_REQUEST": PrivacyRightsRequest,
		"PRIVACY_RIGHTS_REPLY":   PrivacyRightsReply,
	}},
	"USER_LOOKUP": {Code: FamilyUserLookup, Subtypes: map[string]uint16{}},
	"USAGE_STATS": {Code: FamilyUsageStats, Subtypes: map[string]uint16{
		"CLIENT_STATS_REPORT": UsageStatsClientReport,
	}},
	"SSI": {Code: FamilySSI, Subtypes: map[string]uint16{
		"SSI_LIMITS_REQUEST":  SSILimitsRequest,
		"SSI_LIMITS_RESPONSE": SSILimitsResponse,
		"BUDDY_LIST_REQUEST":  SSIBuddyListRequest,
		"BUDDY_LIST_RESPONSE": SSIBuddyListResponse,
	}},
	"OFFLINE": {Code: FamilyOffline, Subtypes: map[string]uint16{}},
	"AUTH": {Code: FamilyAuth, Subtypes: map[string]uint16{
		"REGISTRATION_REFUSED": AuthRegistrationRefused,
		"LOGIN_REQUEST":        AuthLoginRequest,
		"LOGIN_REPLY":          AuthLoginReply,
		"REQUEST_NEW_UIN":      AuthRequestNewUIN,
		"NEW_UIN_RESPONSE":     AuthNewUINResponse,
		"MD5_AUTH_REQUEST":     AuthMD5Request,
		"MD5_AUTH_RESPONSE":    AuthMD5Response,
	}},
}

// Lookup resolves symbolic names to numeric codes. Unknown names are a
// programming error and panic.
func Lookup(family, subtype string) (uint16, uint16) {
	fam, ok := Registry[family]
	if !ok {
		panic(fmt.Sprintf("snac: unknown family %q", family))
	}
	sub, ok := fam.Subtypes[subtype]
	if !ok {
		panic(fmt.Sprintf("snac: unknown subtype %q in family %q", subtype, family))
	}
	return fam.Code, sub
}

// Matches reports whether e is the named family/subtype.
func Matches(e Envelope, family, subtype string) bool {
	f, s := Lookup(family, subtype)
	return e.Family == f && e.Subtype == s
}
