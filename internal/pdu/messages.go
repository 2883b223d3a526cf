package pdu

import (
	"strconv"
	"strings"
)

// PilotPosition is the periodic slow position update of a pilot client ("@")
type PilotPosition struct {
	Header
	SquawkCode       int
	IsSquawkingModeC bool
	IsIdenting       bool
	Rating           NetworkRating
	Lat              float64
	Lon              float64
	TrueAltitude     int
	PressureAltitude int
	GroundSpeed      int
	Pitch            float64
	Bank             float64
	Heading          float64
}

// NewPilotPosition builds a PilotPosition, rejecting NaN coordinates
func NewPilotPosition(from string, squawk int, modeC, identing bool, rating NetworkRating, lat, lon float64, trueAlt, pressureAlt, groundSpeed int, pitch, bank, heading float64) (*PilotPosition, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return &PilotPosition{
		Header:           Header{From: from},
		SquawkCode:       squawk,
		IsSquawkingModeC: modeC,
		IsIdenting:       identing,
		Rating:           rating,
		Lat:              lat,
		Lon:              lon,
		TrueAltitude:     trueAlt,
		PressureAltitude: pressureAlt,
		GroundSpeed:      groundSpeed,
		Pitch:            pitch,
		Bank:             bank,
		Heading:          heading,
	}, nil
}

// Validate rejects NaN coordinates
func (m *PilotPosition) Validate() error {
	return validateCoordinates(m.Lat, m.Lon)
}

// FastPilotPosition is the high rate position and velocity update ("^")
type FastPilotPosition struct {
	Header
	Lat               float64
	Lon               float64
	Altitude          float64
	Pitch             float64
	Bank              float64
	Heading           float64
	VelocityLongitude float64
	VelocityAltitude  float64
	VelocityLatitude  float64
	VelocityPitch     float64
	VelocityHeading   float64
	VelocityBank      float64
}

// NewFastPilotPosition builds a FastPilotPosition, rejecting NaN coordinates
func NewFastPilotPosition(from string, lat, lon, alt, pitch, bank, heading, vLon, vAlt, vLat, vPitch, vHeading, vBank float64) (*FastPilotPosition, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return &FastPilotPosition{
		Header:            Header{From: from},
		Lat:               lat,
		Lon:               lon,
		Altitude:          alt,
		Pitch:             pitch,
		Bank:              bank,
		Heading:           heading,
		VelocityLongitude: vLon,
		VelocityAltitude:  vAlt,
		VelocityLatitude:  vLat,
		VelocityPitch:     vPitch,
		VelocityHeading:   vHeading,
		VelocityBank:      vBank,
	}, nil
}

// Validate rejects NaN coordinates
func (m *FastPilotPosition) Validate() error {
	return validateCoordinates(m.Lat, m.Lon)
}

// ATCPosition is the position update of a controller client ("%")
type ATCPosition struct {
	Header
	Frequency       int
	Facility        NetworkFacility
	VisibilityRange int
	Rating          NetworkRating
	Lat             float64
	Lon             float64
}

// NewATCPosition builds an ATCPosition, rejecting NaN coordinates
func NewATCPosition(from string, frequency int, facility NetworkFacility, visRange int, rating NetworkRating, lat, lon float64) (*ATCPosition, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return &ATCPosition{
		Header:          Header{From: from},
		Frequency:       frequency,
		Facility:        facility,
		VisibilityRange: visRange,
		Rating:          rating,
		Lat:             lat,
		Lon:             lon,
	}, nil
}

// Validate rejects NaN coordinates
func (m *ATCPosition) Validate() error {
	return validateCoordinates(m.Lat, m.Lon)
}

// SecondaryVisCenter is an additional visibility center of a controller ("'")
type SecondaryVisCenter struct {
	Header
	Index int
	Lat   float64
	Lon   float64
}

// NewSecondaryVisCenter builds a SecondaryVisCenter, rejecting NaN coordinates
func NewSecondaryVisCenter(from string, index int, lat, lon float64) (*SecondaryVisCenter, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return &SecondaryVisCenter{Header: Header{From: from}, Index: index, Lat: lat, Lon: lon}, nil
}

// Validate rejects NaN coordinates
func (m *SecondaryVisCenter) Validate() error {
	return validateCoordinates(m.Lat, m.Lon)
}

// ServerIdentification is the greeting sent by the server on connect ($DI)
type ServerIdentification struct {
	Header
	Version             string
	InitialChallengeKey string
}

// ClientIdentification answers the server greeting ($ID)
type ClientIdentification struct {
	Header
	ClientID         uint16
	ClientName       string
	MajorVersion     int
	MinorVersion     int
	CID              string
	SysUID           string
	InitialChallenge string
}

// AddATC logs a controller on (#AA)
type AddATC struct {
	Header
	RealName         string
	CID              string
	Password         string
	Rating           NetworkRating
	ProtocolRevision ProtocolRevision
}

// DeleteATC logs a controller off (#DA)
type DeleteATC struct {
	Header
	CID string
}

// AddPilot logs a pilot on (#AP)
type AddPilot struct {
	Header
	CID              string
	Password         string
	Rating           NetworkRating
	ProtocolRevision ProtocolRevision
	SimulatorType    SimulatorType
	RealName         string
}

// DeletePilot logs a pilot off (#DP)
type DeletePilot struct {
	Header
	CID string
}

// TextMessage is a private text message between two callsigns (#TM)
type TextMessage struct {
	Header
	Message string
}

// ATCMessage is sent to every controller on the network (#TM to @49999)
type ATCMessage struct {
	Header
	Message string
}

// NewATCMessage addresses a message to all controllers
func NewATCMessage(from, message string) *ATCMessage {
	return &ATCMessage{Header: Header{From: from, To: ATCRecipient}, Message: message}
}

// RadioMessage is transmitted on one or more frequencies (#TM to @freq)
type RadioMessage struct {
	Header
	Frequencies []int
	Message     string
}

// NewRadioMessage addresses a message to the given frequencies
func NewRadioMessage(from string, frequencies []int, message string) *RadioMessage {
	return &RadioMessage{
		Header:      Header{From: from, To: radioRecipient(frequencies)},
		Frequencies: frequencies,
		Message:     message,
	}
}

// BroadcastMessage is sent to every client (#TM to *)
type BroadcastMessage struct {
	Header
	Message string
}

// NewBroadcastMessage addresses a message to all clients
func NewBroadcastMessage(from, message string) *BroadcastMessage {
	return &BroadcastMessage{Header: Header{From: from, To: BroadcastRecipient}, Message: message}
}

// Wallop is an urgent message to all supervisors (#TM to *S)
type Wallop struct {
	Header
	Message string
}

// NewWallop addresses a message to all supervisors
func NewWallop(from, message string) *Wallop {
	return &Wallop{Header: Header{From: from, To: WallopRecipient}, Message: message}
}

// WeatherProfileRequest asks the server for the weather at a station (#WX)
type WeatherProfileRequest struct {
	Header
	Station string
}

// WindLayer is one layer of WindData
type WindLayer struct {
	Ceiling    int
	Floor      int
	Direction  int
	Speed      int
	Gusting    bool
	Turbulence int
}

// WindData carries the winds aloft of a weather profile (#WD)
type WindData struct {
	Header
	Layers [4]WindLayer
}

// TempLayer is one layer of TemperatureData
type TempLayer struct {
	Ceiling int
	Temp    int
}

// TemperatureData carries the temperatures aloft and pressure (#TD)
type TemperatureData struct {
	Header
	Layers   [4]TempLayer
	Pressure int
}

// CloudLayer is one cloud or storm layer of CloudData
type CloudLayer struct {
	Ceiling    int
	Floor      int
	Coverage   int
	Icing      int
	Turbulence int
}

// CloudData carries cloud layers and visibility (#CD)
type CloudData struct {
	Header
	Layers     [2]CloudLayer
	Storm      CloudLayer
	Visibility float64
}

// VersionRequest asks a client for its CCP version (#PC CCP VER)
type VersionRequest struct {
	Header
}

// HandoffCancelled cancels a pending handoff of Target (#PC CCP HC)
type HandoffCancelled struct {
	Header
	Target string
}

// FlightStrip pushes the flight strip of Target (#PC CCP ST)
type FlightStrip struct {
	Header
	Target      string
	FormatID    int
	Annotations []string
}

// PushToDepartureList pushes Target to the departure list (#PC CCP DP)
type PushToDepartureList struct {
	Header
	Target string
}

// Pointout points Target out to another controller (#PC CCP PT)
type Pointout struct {
	Header
	Target string
}

// IHaveTarget announces that the sender tracks Target (#PC CCP IH)
type IHaveTarget struct {
	Header
	Target string
}

// SharedState is a scope state update of Target (#PC CCP SC|BC|VT|TA)
type SharedState struct {
	Header
	Type   SharedStateType
	Target string
	Value  string
}

// LandLineCommand negotiates a controller voice landline (#PC CCP IC|IK|...)
type LandLineCommand struct {
	Header
	Type    LandLineType
	Address string
	Port    int
}

// PlaneInfoRequest asks a pilot for its aircraft model (#SB PIR)
type PlaneInfoRequest struct {
	Header
}

// PlaneInfoResponse answers PlaneInfoRequest in the generic format (#SB PI GEN)
type PlaneInfoResponse struct {
	Header
	Equipment string
	Airline   string
	Livery    string
	CSL       string
}

// LegacyPlaneInfoResponse answers PlaneInfoRequest in the old format (#SB PI X)
type LegacyPlaneInfoResponse struct {
	Header
	Equipment string
}

// FlightPlanFields are the fields shared by FlightPlan and FlightPlanAmendment
type FlightPlanFields struct {
	Rules            FlightRules
	Equipment        string
	TrueAirspeed     int
	DepAirport       string
	EstimatedDepTime string
	ActualDepTime    string
	CruiseAlt        string
	DestAirport      string
	HoursEnroute     int
	MinutesEnroute   int
	FuelAvailHours   int
	FuelAvailMinutes int
	AltAirport       string
	Remarks          string
	Route            string
}

// FlightPlan files a flight plan ($FP)
type FlightPlan struct {
	Header
	FlightPlanFields
}

// FlightPlanAmendment amends the flight plan of Callsign ($AM)
type FlightPlanAmendment struct {
	Header
	Callsign string
	FlightPlanFields
}

// Ping asks the recipient to echo Timestamp ($PI)
type Ping struct {
	Header
	Timestamp string
}

// Pong echoes a Ping ($PO)
type Pong struct {
	Header
	Timestamp string
}

// Handoff offers Target to another controller ($HO)
type Handoff struct {
	Header
	Target string
}

// HandoffAccept accepts a Handoff of Target ($HA)
type HandoffAccept struct {
	Header
	Target string
}

// MetarRequest asks the server for the METAR of Station ($AX)
type MetarRequest struct {
	Header
	Station string
}

// MetarResponse carries a METAR ($AR)
type MetarResponse struct {
	Header
	Metar string
}

// ClientQuery asks another client for information ($CQ)
type ClientQuery struct {
	Header
	QueryType ClientQueryType
	Payload   []string
}

// ClientQueryResponse answers a ClientQuery ($CR)
type ClientQueryResponse struct {
	Header
	QueryType ClientQueryType
	Payload   []string
}

// AuthChallenge challenges the recipient to prove its identity ($ZC)
type AuthChallenge struct {
	Header
	Challenge string
}

// AuthResponse answers an AuthChallenge ($ZR)
type AuthResponse struct {
	Header
	Response string
}

// KillRequest asks the server to disconnect a client ($!!)
type KillRequest struct {
	Header
	Reason string
}

// ProtocolError is reported by the server ($ER)
type ProtocolError struct {
	Header
	ErrorType ProtocolErrorType
	Param     string
	Message   string
}

// Fatal reports whether the server will drop the connection after this error
func (m *ProtocolError) Fatal() bool {
	return m.ErrorType.IsFatal()
}

func radioRecipient(frequencies []int) string {
	parts := make([]string, len(frequencies))
	for i, f := range frequencies {
		parts[i] = RadioFrequencyPrefix + strconv.Itoa(f)
	}
	return strings.Join(parts, RadioFrequencySeparator)
}
