package pdu

import "fmt"

// NetworkRating is the controller/pilot rating assigned by the network
type NetworkRating int

const (
	RatingUnknown NetworkRating = iota
	RatingOBS
	RatingS1
	RatingS2
	RatingS3
	RatingC1
	RatingC2
	RatingC3
	RatingI1
	RatingI2
	RatingI3
	RatingSUP
	RatingADM
)

var ratingNames = [...]string{"UNKNOWN", "OBS", "S1", "S2", "S3", "C1", "C2", "C3", "I1", "I2", "I3", "SUP", "ADM"}

func (r NetworkRating) String() string {
	if r >= 0 && int(r) < len(ratingNames) {
		return ratingNames[r]
	}
	return fmt.Sprintf("NetworkRating(%d)", int(r))
}

// NetworkFacility is the type of ATC position being staffed
type NetworkFacility int

const (
	FacilityOBS NetworkFacility = iota
	FacilityFSS
	FacilityDEL
	FacilityGND
	FacilityTWR
	FacilityAPP
	FacilityCTR
)

var facilityNames = [...]string{"OBS", "FSS", "DEL", "GND", "TWR", "APP", "CTR"}

func (f NetworkFacility) String() string {
	if f >= 0 && int(f) < len(facilityNames) {
		return facilityNames[f]
	}
	return fmt.Sprintf("NetworkFacility(%d)", int(f))
}

// ProtocolRevision is the FSD protocol revision announced at logon.
// Revisions are ordered; authentication is required from RevisionVatsimAuth on.
type ProtocolRevision int

const (
	RevisionUnknown      ProtocolRevision = 0
	RevisionClassic      ProtocolRevision = 9
	RevisionVatsimNoAuth ProtocolRevision = 10
	RevisionVatsimAuth   ProtocolRevision = 100
	RevisionVatsim2022   ProtocolRevision = 101
)

// RequiresAuth reports whether this revision takes part in challenge/response
func (r ProtocolRevision) RequiresAuth() bool {
	return r >= RevisionVatsimAuth
}

// SimulatorType identifies the flight simulator a pilot client runs on
type SimulatorType int

const (
	SimUnknown  SimulatorType = 0
	SimMSFS95   SimulatorType = 1
	SimMSFS98   SimulatorType = 2
	SimMSCFS    SimulatorType = 3
	SimMSFS2000 SimulatorType = 4
	SimMSCFS2   SimulatorType = 5
	SimMSFS2002 SimulatorType = 6
	SimMSCFS3   SimulatorType = 7
	SimMSFS2004 SimulatorType = 8
	SimMSFSX    SimulatorType = 9
	SimXPlane8  SimulatorType = 12
	SimXPlane9  SimulatorType = 13
	SimXPlane10 SimulatorType = 14
	SimXPlane11 SimulatorType = 16
	SimXPlane12 SimulatorType = 17
	SimPrepar3D SimulatorType = 30
	SimMSFS2020 SimulatorType = 31
)

// FlightRules of a filed flight plan
type FlightRules int

const (
	RulesIFR FlightRules = iota
	RulesVFR
	RulesDVFR
	RulesSVFR
)

// Wire letters for FlightRules
var flightRuleLetters = [...]string{"I", "V", "D", "S"}

func (r FlightRules) String() string {
	if r >= 0 && int(r) < len(flightRuleLetters) {
		return flightRuleLetters[r]
	}
	return "I"
}

// ParseFlightRules converts a wire letter into FlightRules
func ParseFlightRules(s string) (FlightRules, error) {
	switch s {
	case "I", "i", "IFR":
		return RulesIFR, nil
	case "V", "v", "VFR":
		return RulesVFR, nil
	case "D", "d", "DVFR":
		return RulesDVFR, nil
	case "S", "s", "SVFR":
		return RulesSVFR, nil
	default:
		return RulesIFR, fmt.Errorf("unknown flight rules %q", s)
	}
}

// ProtocolErrorType is the numeric code carried by $ER
type ProtocolErrorType int

const (
	ErrorOk ProtocolErrorType = iota
	ErrorCallsignInUse
	ErrorCallsignInvalid
	ErrorAlreadyRegistered
	ErrorSyntaxError
	ErrorPDUSourceInvalid
	ErrorInvalidLogon
	ErrorNoSuchCallsign
	ErrorNoFlightPlan
	ErrorNoWeatherProfile
	ErrorInvalidProtocolRevision
	ErrorRequestedLevelTooHigh
	ErrorServerFull
	ErrorCertificateSuspended
	ErrorInvalidControl
	ErrorInvalidPositionForRating
	ErrorUnauthorizedSoftware
	ErrorAuthResponseTimeout
)

// IsFatal reports whether the server disconnects the client after this error
func (t ProtocolErrorType) IsFatal() bool {
	switch t {
	case ErrorCallsignInUse, ErrorCallsignInvalid, ErrorAlreadyRegistered,
		ErrorInvalidLogon, ErrorInvalidProtocolRevision, ErrorRequestedLevelTooHigh,
		ErrorServerFull, ErrorCertificateSuspended, ErrorInvalidPositionForRating,
		ErrorUnauthorizedSoftware, ErrorAuthResponseTimeout:
		return true
	default:
		return false
	}
}

// ClientQueryType is the query code of $CQ/$CR
type ClientQueryType string

const (
	QueryIsValidATC      ClientQueryType = "ATC"
	QueryCapabilities    ClientQueryType = "CAPS"
	QueryCOM1Freq        ClientQueryType = "C?"
	QueryRealName        ClientQueryType = "RN"
	QueryServer          ClientQueryType = "SV"
	QueryATIS            ClientQueryType = "ATIS"
	QueryFlightPlan      ClientQueryType = "FP"
	QueryPublicIP        ClientQueryType = "IP"
	QueryINF             ClientQueryType = "INF"
	QueryAircraftConfig  ClientQueryType = "ACC"
	QueryWhoHas          ClientQueryType = "WH"
	QueryInitiateTrack   ClientQueryType = "IT"
	QueryAcceptHandoff   ClientQueryType = "HT"
	QueryDropTrack       ClientQueryType = "DR"
	QuerySetFinalAlt     ClientQueryType = "FA"
	QuerySetTempAlt      ClientQueryType = "TA"
	QuerySetBeaconCode   ClientQueryType = "BC"
	QuerySetScratchpad   ClientQueryType = "SC"
	QuerySetVoiceType    ClientQueryType = "VT"
	QueryHelpOn          ClientQueryType = "HLP"
	QueryHelpOff         ClientQueryType = "NOHLP"
	QueryNewInfo         ClientQueryType = "NEWINFO"
	QueryNewATIS         ClientQueryType = "NEWATIS"
	QueryEstimate        ClientQueryType = "EST"
	QueryGlobalData      ClientQueryType = "GD"
	QuerySimulatedTime   ClientQueryType = "SIMTIME"
	QueryInterimPosition ClientQueryType = "IPC"
)

// SharedStateType is the #PC CCP subtype of a shared scope state update
type SharedStateType string

const (
	SharedScratchpad   SharedStateType = "SC"
	SharedBeaconCode   SharedStateType = "BC"
	SharedVoiceType    SharedStateType = "VT"
	SharedTempAltitude SharedStateType = "TA"
)

// LandLineType is the #PC CCP subtype of a landline command
type LandLineType string

const (
	LandLineIntercomRequest LandLineType = "IC"
	LandLineIntercomApprove LandLineType = "IK"
	LandLineIntercomReject  LandLineType = "IB"
	LandLineIntercomEnd     LandLineType = "EC"
	LandLineOverrideRequest LandLineType = "OV"
	LandLineOverrideApprove LandLineType = "OK"
	LandLineOverrideReject  LandLineType = "OB"
	LandLineOverrideEnd     LandLineType = "EO"
	LandLineMonitorRequest  LandLineType = "MN"
	LandLineMonitorApprove  LandLineType = "MK"
	LandLineMonitorReject   LandLineType = "MB"
	LandLineMonitorEnd      LandLineType = "EM"
)
