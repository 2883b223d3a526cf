package pdu

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

type decodeFunc func(fields []string) (Message, error)

// Decoders keyed by the three character type code of '#' and '$' packets.
// #TM, #PC, #SB, #DL and $FP need extra handling and live in Decode.
var typeCodeDecoders = map[string]decodeFunc{
	"$DI": decodeServerIdentification,
	"$ID": decodeClientIdentification,
	"#AA": decodeAddATC,
	"#DA": decodeDeleteATC,
	"#AP": decodeAddPilot,
	"#DP": decodeDeletePilot,
	"#WX": decodeWeatherProfileRequest,
	"#WD": decodeWindData,
	"#TD": decodeTemperatureData,
	"#CD": decodeCloudData,
	"$AM": decodeFlightPlanAmendment,
	"$PI": decodePing,
	"$PO": decodePong,
	"$HO": decodeHandoff,
	"$HA": decodeHandoffAccept,
	"$AX": decodeMetarRequest,
	"$AR": decodeMetarResponse,
	"$CQ": decodeClientQuery,
	"$CR": decodeClientQueryResponse,
	"$ZC": decodeAuthChallenge,
	"$ZR": decodeAuthResponse,
	"$!!": decodeKillRequest,
	"$ER": decodeProtocolError,
}

// Decode parses one packet (without terminator) into a Message.
//
// A nil Message with a nil error means the packet was dropped on purpose:
// deprecated packets, unparseable flight plans, and, when ignoreUnknown is
// set, packets of an unknown type. Every other failure is a *FormatError.
func Decode(packet string, ignoreUnknown bool) (Message, error) {
	if packet == "" {
		return dropOrFail(ignoreUnknown, "Empty packet.", packet)
	}
	fields := strings.Split(packet, Delimiter)

	switch packet[0] {
	case '@':
		fields[0] = fields[0][1:]
		return parse(packet, decodePilotPosition, fields)
	case '%':
		fields[0] = fields[0][1:]
		return parse(packet, decodeATCPosition, fields)
	case '\'':
		fields[0] = fields[0][1:]
		return parse(packet, decodeSecondaryVisCenter, fields)
	case '^':
		fields[0] = fields[0][1:]
		return parse(packet, decodeFastPilotPosition, fields)
	case '#', '$':
	default:
		return dropOrFail(ignoreUnknown, "Unknown PDU type.", packet)
	}

	if len(fields[0]) < 3 {
		return nil, &FormatError{Reason: "Invalid PDU type.", Raw: packet}
	}
	code := fields[0][:3]
	fields[0] = fields[0][3:]

	switch code {
	case "#TM":
		return parse(packet, decodeTextMessage, fields)
	case "#PC":
		return decodeCCP(packet, fields, ignoreUnknown)
	case "#SB":
		return decodeSquawkBox(packet, fields, ignoreUnknown)
	case "#DL":
		return nil, nil
	case "$FP":
		m, err := decodeFlightPlan(fields)
		if err != nil {
			return nil, nil
		}
		return m, nil
	}

	dec, ok := typeCodeDecoders[code]
	if !ok {
		return dropOrFail(ignoreUnknown, "Unknown PDU type.", packet)
	}
	return parse(packet, dec, fields)
}

func decodeCCP(packet string, fields []string, ignoreUnknown bool) (Message, error) {
	if len(fields) < 4 || fields[2] != ClientCommunicationProtocolTag {
		return dropOrFail(ignoreUnknown, "Invalid field count.", packet)
	}
	h := header(fields)
	rest := fields[4:]

	var m Message
	var err error
	switch sub := fields[3]; sub {
	case "VER":
		return &VersionRequest{Header: h}, nil
	case "ID", "DI":
		return nil, nil
	case "HC":
		m, err = withTarget(rest, func(t string) Message { return &HandoffCancelled{Header: h, Target: t} })
	case "DP":
		m, err = withTarget(rest, func(t string) Message { return &PushToDepartureList{Header: h, Target: t} })
	case "PT":
		m, err = withTarget(rest, func(t string) Message { return &Pointout{Header: h, Target: t} })
	case "IH":
		m, err = withTarget(rest, func(t string) Message { return &IHaveTarget{Header: h, Target: t} })
	case "ST":
		m, err = decodeFlightStrip(h, rest)
	case string(SharedScratchpad), string(SharedBeaconCode), string(SharedVoiceType), string(SharedTempAltitude):
		if len(rest) < 2 {
			err = errInvalidFieldCount
			break
		}
		m = &SharedState{Header: h, Type: SharedStateType(sub), Target: rest[0], Value: rest[1]}
	default:
		if !isLandLineType(sub) {
			return dropOrFail(ignoreUnknown, "Unknown CCP subtype.", packet)
		}
		m, err = decodeLandLine(h, LandLineType(sub), rest)
	}
	return wrap(packet, m, err)
}

func decodeSquawkBox(packet string, fields []string, ignoreUnknown bool) (Message, error) {
	if len(fields) < 3 {
		return dropOrFail(ignoreUnknown, "Invalid field count.", packet)
	}
	h := header(fields)

	switch fields[2] {
	case "PIR":
		return &PlaneInfoRequest{Header: h}, nil
	case "PI":
	default:
		return dropOrFail(ignoreUnknown, "Unknown SB subtype.", packet)
	}

	if len(fields) < 4 {
		return dropOrFail(ignoreUnknown, "Invalid field count.", packet)
	}
	switch fields[3] {
	case "GEN":
		m := &PlaneInfoResponse{Header: h}
		for _, kv := range fields[4:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch key {
			case "EQUIPMENT":
				m.Equipment = value
			case "AIRLINE":
				m.Airline = value
			case "LIVERY":
				m.Livery = value
			case "CSL":
				m.CSL = value
			}
		}
		return m, nil
	case "X":
		if len(fields) < 7 {
			return nil, &FormatError{Reason: "Invalid field count.", Raw: packet, Err: errInvalidFieldCount}
		}
		return &LegacyPlaneInfoResponse{Header: h, Equipment: fields[6]}, nil
	default:
		return dropOrFail(ignoreUnknown, "Unknown SB subtype.", packet)
	}
}

func decodeTextMessage(fields []string) (Message, error) {
	parts := strings.SplitN(Reassemble(fields), Delimiter, 3)
	if len(parts) < 3 {
		return nil, errInvalidFieldCount
	}
	h := Header{From: parts[0], To: parts[1]}
	body := parts[2]

	switch {
	case h.To == BroadcastRecipient:
		return &BroadcastMessage{Header: h, Message: body}, nil
	case h.To == WallopRecipient:
		return &Wallop{Header: h, Message: body}, nil
	case h.To == ATCRecipient:
		return &ATCMessage{Header: h, Message: body}, nil
	case strings.HasPrefix(h.To, RadioFrequencyPrefix):
		var freqs []int
		for _, f := range strings.Split(h.To, RadioFrequencySeparator) {
			n, err := strconv.Atoi(strings.TrimPrefix(f, RadioFrequencyPrefix))
			if err != nil {
				return nil, err
			}
			freqs = append(freqs, n)
		}
		return &RadioMessage{Header: h, Frequencies: freqs, Message: body}, nil
	default:
		return &TextMessage{Header: h, Message: body}, nil
	}
}

func decodePilotPosition(f []string) (Message, error) {
	if len(f) < 10 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	trueAlt := p.float(6)
	pressureDelta := p.float(9)
	pbh := p.uint32(8)
	m := &PilotPosition{
		Header:      Header{From: f[1]},
		SquawkCode:  p.int(2),
		Rating:      NetworkRating(p.int(3)),
		Lat:         p.float(4),
		Lon:         p.float(5),
		GroundSpeed: roundInt(p.float(7)),
	}
	if p.err != nil {
		return nil, p.err
	}
	switch f[0] {
	case "N":
		m.IsSquawkingModeC = true
	case "Y":
		m.IsSquawkingModeC = true
		m.IsIdenting = true
	}
	m.TrueAltitude = roundInt(trueAlt)
	m.PressureAltitude = roundInt(trueAlt + pressureDelta)
	m.Pitch, m.Bank, m.Heading = UnpackPitchBankHeading(pbh)
	return m, m.Validate()
}

func decodeFastPilotPosition(f []string) (Message, error) {
	if len(f) < 11 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &FastPilotPosition{
		Header:            Header{From: f[0]},
		Lat:               p.float(1),
		Lon:               p.float(2),
		Altitude:          p.float(3),
		VelocityLongitude: p.float(5),
		VelocityAltitude:  p.float(6),
		VelocityLatitude:  p.float(7),
		VelocityPitch:     p.float(8),
		VelocityHeading:   p.float(9),
		VelocityBank:      p.float(10),
	}
	pbh := p.uint32(4)
	if p.err != nil {
		return nil, p.err
	}
	m.Pitch, m.Bank, m.Heading = UnpackPitchBankHeading(pbh)
	return m, m.Validate()
}

func decodeATCPosition(f []string) (Message, error) {
	if len(f) < 7 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &ATCPosition{
		Header:          Header{From: f[0]},
		Frequency:       p.int(1),
		Facility:        NetworkFacility(p.int(2)),
		VisibilityRange: p.int(3),
		Rating:          NetworkRating(p.int(4)),
		Lat:             p.float(5),
		Lon:             p.float(6),
	}
	if p.err != nil {
		return nil, p.err
	}
	return m, m.Validate()
}

func decodeSecondaryVisCenter(f []string) (Message, error) {
	if len(f) < 4 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &SecondaryVisCenter{
		Header: Header{From: f[0]},
		Index:  p.int(1),
		Lat:    p.float(2),
		Lon:    p.float(3),
	}
	if p.err != nil {
		return nil, p.err
	}
	return m, m.Validate()
}

func decodeServerIdentification(f []string) (Message, error) {
	if len(f) < 4 {
		return nil, errInvalidFieldCount
	}
	return &ServerIdentification{Header: header(f), Version: f[2], InitialChallengeKey: f[3]}, nil
}

func decodeClientIdentification(f []string) (Message, error) {
	if len(f) < 8 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &ClientIdentification{
		Header:       header(f),
		ClientID:     p.hex16(2),
		ClientName:   f[3],
		MajorVersion: p.int(4),
		MinorVersion: p.int(5),
		CID:          f[6],
		SysUID:       f[7],
	}
	if len(f) > 8 {
		m.InitialChallenge = f[8]
	}
	return m, p.err
}

func decodeAddATC(f []string) (Message, error) {
	if len(f) < 7 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &AddATC{
		Header:           header(f),
		RealName:         f[2],
		CID:              f[3],
		Password:         f[4],
		Rating:           NetworkRating(p.int(5)),
		ProtocolRevision: ProtocolRevision(p.int(6)),
	}
	return m, p.err
}

func decodeAddPilot(f []string) (Message, error) {
	if len(f) < 8 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &AddPilot{
		Header:           header(f),
		CID:              f[2],
		Password:         f[3],
		Rating:           NetworkRating(p.int(4)),
		ProtocolRevision: ProtocolRevision(p.int(5)),
		SimulatorType:    SimulatorType(p.int(6)),
		RealName:         f[7],
	}
	return m, p.err
}

func decodeDeleteATC(f []string) (Message, error) {
	m := &DeleteATC{Header: Header{From: f[0]}}
	if len(f) > 1 {
		m.CID = f[1]
	}
	return m, nil
}

func decodeDeletePilot(f []string) (Message, error) {
	m := &DeletePilot{Header: Header{From: f[0]}}
	if len(f) > 1 {
		m.CID = f[1]
	}
	return m, nil
}

func decodeWeatherProfileRequest(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &WeatherProfileRequest{Header: header(f), Station: f[2]}, nil
}

func decodeWindData(f []string) (Message, error) {
	if len(f) < 26 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &WindData{Header: header(f)}
	for i := range m.Layers {
		base := 2 + i*6
		m.Layers[i] = WindLayer{
			Ceiling:    p.int(base),
			Floor:      p.int(base + 1),
			Direction:  p.int(base + 2),
			Speed:      p.int(base + 3),
			Gusting:    p.int(base+4) == 1,
			Turbulence: p.int(base + 5),
		}
	}
	return m, p.err
}

func decodeTemperatureData(f []string) (Message, error) {
	if len(f) < 11 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &TemperatureData{Header: header(f)}
	for i := range m.Layers {
		base := 2 + i*2
		m.Layers[i] = TempLayer{Ceiling: p.int(base), Temp: p.int(base + 1)}
	}
	m.Pressure = p.int(10)
	return m, p.err
}

func decodeCloudData(f []string) (Message, error) {
	if len(f) < 18 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	layer := func(base int) CloudLayer {
		return CloudLayer{
			Ceiling:    p.int(base),
			Floor:      p.int(base + 1),
			Coverage:   p.int(base + 2),
			Icing:      p.int(base + 3),
			Turbulence: p.int(base + 4),
		}
	}
	m := &CloudData{Header: header(f)}
	m.Layers[0] = layer(2)
	m.Layers[1] = layer(7)
	m.Storm = layer(12)
	m.Visibility = p.float(17)
	return m, p.err
}

func decodeFlightStrip(h Header, rest []string) (Message, error) {
	if len(rest) < 1 {
		return nil, errInvalidFieldCount
	}
	m := &FlightStrip{Header: h, Target: rest[0]}
	if len(rest) > 1 {
		id, err := strconv.Atoi(rest[1])
		if err != nil {
			return nil, err
		}
		m.FormatID = id
	}
	if len(rest) > 2 {
		m.Annotations = append([]string(nil), rest[2:]...)
	}
	return m, nil
}

func decodeLandLine(h Header, t LandLineType, rest []string) (Message, error) {
	m := &LandLineCommand{Header: h, Type: t}
	if len(rest) >= 2 {
		port, err := strconv.Atoi(rest[1])
		if err != nil {
			return nil, err
		}
		m.Address = rest[0]
		m.Port = port
	}
	return m, nil
}

func decodeFlightPlanFields(f []string) (FlightPlanFields, error) {
	if len(f) < 15 {
		return FlightPlanFields{}, errInvalidFieldCount
	}
	rules, err := ParseFlightRules(f[0])
	if err != nil {
		return FlightPlanFields{}, err
	}
	p := fieldParser{fields: f}
	fp := FlightPlanFields{
		Rules:            rules,
		Equipment:        f[1],
		TrueAirspeed:     p.intOrZero(2),
		DepAirport:       f[3],
		EstimatedDepTime: f[4],
		ActualDepTime:    f[5],
		CruiseAlt:        f[6],
		DestAirport:      f[7],
		HoursEnroute:     p.intOrZero(8),
		MinutesEnroute:   p.intOrZero(9),
		FuelAvailHours:   p.intOrZero(10),
		FuelAvailMinutes: p.intOrZero(11),
		AltAirport:       f[12],
		Remarks:          f[13],
		Route:            f[14],
	}
	return fp, p.err
}

func decodeFlightPlan(f []string) (Message, error) {
	if len(f) < 17 {
		return nil, errInvalidFieldCount
	}
	fp, err := decodeFlightPlanFields(f[2:])
	if err != nil {
		return nil, err
	}
	return &FlightPlan{Header: header(f), FlightPlanFields: fp}, nil
}

func decodeFlightPlanAmendment(f []string) (Message, error) {
	if len(f) < 18 {
		return nil, errInvalidFieldCount
	}
	fp, err := decodeFlightPlanFields(f[3:])
	if err != nil {
		return nil, err
	}
	return &FlightPlanAmendment{Header: header(f), Callsign: f[2], FlightPlanFields: fp}, nil
}

func decodePing(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &Ping{Header: header(f), Timestamp: f[2]}, nil
}

func decodePong(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &Pong{Header: header(f), Timestamp: f[2]}, nil
}

func decodeHandoff(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &Handoff{Header: header(f), Target: f[2]}, nil
}

func decodeHandoffAccept(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &HandoffAccept{Header: header(f), Target: f[2]}, nil
}

func decodeMetarRequest(f []string) (Message, error) {
	if len(f) < 4 {
		return nil, errInvalidFieldCount
	}
	return &MetarRequest{Header: header(f), Station: f[3]}, nil
}

func decodeMetarResponse(f []string) (Message, error) {
	if len(f) < 4 {
		return nil, errInvalidFieldCount
	}
	return &MetarResponse{Header: header(f), Metar: Reassemble(f[3:])}, nil
}

func decodeClientQuery(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &ClientQuery{Header: header(f), QueryType: ClientQueryType(f[2]), Payload: payload(f[3:])}, nil
}

func decodeClientQueryResponse(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &ClientQueryResponse{Header: header(f), QueryType: ClientQueryType(f[2]), Payload: payload(f[3:])}, nil
}

func decodeAuthChallenge(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &AuthChallenge{Header: header(f), Challenge: f[2]}, nil
}

func decodeAuthResponse(f []string) (Message, error) {
	if len(f) < 3 {
		return nil, errInvalidFieldCount
	}
	return &AuthResponse{Header: header(f), Response: f[2]}, nil
}

func decodeKillRequest(f []string) (Message, error) {
	if len(f) < 2 {
		return nil, errInvalidFieldCount
	}
	m := &KillRequest{Header: header(f)}
	if len(f) > 2 {
		m.Reason = Reassemble(f[2:])
	}
	return m, nil
}

func decodeProtocolError(f []string) (Message, error) {
	if len(f) < 5 {
		return nil, errInvalidFieldCount
	}
	p := fieldParser{fields: f}
	m := &ProtocolError{
		Header:    header(f),
		ErrorType: ProtocolErrorType(p.int(2)),
		Param:     f[3],
		Message:   Reassemble(f[4:]),
	}
	return m, p.err
}

// header reads From and To from the first two fields; callers check the count.
func header(f []string) Header {
	h := Header{From: f[0]}
	if len(f) > 1 {
		h.To = f[1]
	}
	return h
}

func withTarget(rest []string, build func(target string) Message) (Message, error) {
	if len(rest) < 1 {
		return nil, errInvalidFieldCount
	}
	return build(rest[0]), nil
}

func payload(f []string) []string {
	if len(f) == 0 {
		return nil
	}
	return append([]string(nil), f...)
}

func isLandLineType(s string) bool {
	switch LandLineType(s) {
	case LandLineIntercomRequest, LandLineIntercomApprove, LandLineIntercomReject, LandLineIntercomEnd,
		LandLineOverrideRequest, LandLineOverrideApprove, LandLineOverrideReject, LandLineOverrideEnd,
		LandLineMonitorRequest, LandLineMonitorApprove, LandLineMonitorReject, LandLineMonitorEnd:
		return true
	}
	return false
}

func parse(packet string, dec decodeFunc, fields []string) (Message, error) {
	m, err := dec(fields)
	return wrap(packet, m, err)
}

// wrap turns a variant parser failure into a *FormatError carrying the raw packet
func wrap(packet string, m Message, err error) (Message, error) {
	if err == nil {
		return m, nil
	}
	reason := "Parse error."
	if errors.Is(err, errInvalidFieldCount) {
		reason = "Invalid field count."
	}
	return nil, &FormatError{Reason: reason, Raw: packet, Err: err}
}

func dropOrFail(ignoreUnknown bool, reason, packet string) (Message, error) {
	if ignoreUnknown {
		return nil, nil
	}
	return nil, &FormatError{Reason: reason, Raw: packet}
}

func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}

// fieldParser converts positional fields, keeping the first failure
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) int(i int) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.fields[i])
	if err != nil {
		p.err = err
	}
	return v
}

func (p *fieldParser) intOrZero(i int) int {
	if strings.TrimSpace(p.fields[i]) == "" {
		return 0
	}
	return p.int(i)
}

func (p *fieldParser) float(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = err
	}
	return v
}

func (p *fieldParser) uint32(i int) uint32 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(p.fields[i], 10, 32)
	if err != nil {
		p.err = err
	}
	return uint32(v)
}

func (p *fieldParser) hex16(i int) uint16 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(p.fields[i], 16, 16)
	if err != nil {
		p.err = err
	}
	return uint16(v)
}
