package pdu

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode renders m as packet text, without the packet terminator.
// A nil or foreign Message encodes to the empty string.
func Encode(m Message) string {
	switch m := m.(type) {
	case *PilotPosition:
		pbh := PackPitchBankHeading(m.Pitch, m.Bank, m.Heading)
		return "@" + join(
			transponderMode(m.IsSquawkingModeC, m.IsIdenting),
			m.From,
			fmt.Sprintf("%04d", m.SquawkCode),
			itoa(int(m.Rating)),
			coord(m.Lat),
			coord(m.Lon),
			itoa(m.TrueAltitude),
			itoa(m.GroundSpeed),
			strconv.FormatUint(uint64(pbh), 10),
			itoa(m.PressureAltitude-m.TrueAltitude),
		)
	case *FastPilotPosition:
		pbh := PackPitchBankHeading(m.Pitch, m.Bank, m.Heading)
		return "^" + join(
			m.From,
			coord(m.Lat),
			coord(m.Lon),
			altitude(m.Altitude),
			strconv.FormatUint(uint64(pbh), 10),
			velocity(m.VelocityLongitude),
			velocity(m.VelocityAltitude),
			velocity(m.VelocityLatitude),
			velocity(m.VelocityPitch),
			velocity(m.VelocityHeading),
			velocity(m.VelocityBank),
		)
	case *ATCPosition:
		return "%" + join(
			m.From,
			itoa(m.Frequency),
			itoa(int(m.Facility)),
			itoa(m.VisibilityRange),
			itoa(int(m.Rating)),
			coord(m.Lat),
			coord(m.Lon),
			"0",
		)
	case *SecondaryVisCenter:
		return "'" + join(m.From, itoa(m.Index), coord(m.Lat), coord(m.Lon))
	case *ServerIdentification:
		return "$DI" + join(m.From, m.To, m.Version, m.InitialChallengeKey)
	case *ClientIdentification:
		f := []string{
			m.From,
			m.To,
			fmt.Sprintf("%04x", m.ClientID),
			m.ClientName,
			itoa(m.MajorVersion),
			itoa(m.MinorVersion),
			m.CID,
			m.SysUID,
		}
		if m.InitialChallenge != "" {
			f = append(f, m.InitialChallenge)
		}
		return "$ID" + join(f...)
	case *AddATC:
		return "#AA" + join(m.From, m.To, m.RealName, m.CID, m.Password, itoa(int(m.Rating)), itoa(int(m.ProtocolRevision)))
	case *DeleteATC:
		return "#DA" + join(optional(m.From, m.CID)...)
	case *AddPilot:
		return "#AP" + join(m.From, m.To, m.CID, m.Password, itoa(int(m.Rating)), itoa(int(m.ProtocolRevision)), itoa(int(m.SimulatorType)), m.RealName)
	case *DeletePilot:
		return "#DP" + join(optional(m.From, m.CID)...)
	case *TextMessage:
		return "#TM" + join(m.From, m.To, m.Message)
	case *ATCMessage:
		return "#TM" + join(m.From, ATCRecipient, m.Message)
	case *RadioMessage:
		to := m.To
		if len(m.Frequencies) > 0 {
			to = radioRecipient(m.Frequencies)
		}
		return "#TM" + join(m.From, to, m.Message)
	case *BroadcastMessage:
		return "#TM" + join(m.From, BroadcastRecipient, m.Message)
	case *Wallop:
		return "#TM" + join(m.From, WallopRecipient, m.Message)
	case *WeatherProfileRequest:
		return "#WX" + join(m.From, m.To, m.Station)
	case *WindData:
		f := []string{m.From, m.To}
		for _, l := range m.Layers {
			f = append(f, itoa(l.Ceiling), itoa(l.Floor), itoa(l.Direction), itoa(l.Speed), boolFlag(l.Gusting), itoa(l.Turbulence))
		}
		return "#WD" + join(f...)
	case *TemperatureData:
		f := []string{m.From, m.To}
		for _, l := range m.Layers {
			f = append(f, itoa(l.Ceiling), itoa(l.Temp))
		}
		f = append(f, itoa(m.Pressure))
		return "#TD" + join(f...)
	case *CloudData:
		f := []string{m.From, m.To}
		for _, l := range append(m.Layers[:], m.Storm) {
			f = append(f, itoa(l.Ceiling), itoa(l.Floor), itoa(l.Coverage), itoa(l.Icing), itoa(l.Turbulence))
		}
		f = append(f, strconv.FormatFloat(m.Visibility, 'f', -1, 64))
		return "#CD" + join(f...)
	case *VersionRequest:
		return ccp(m.Header, "VER")
	case *HandoffCancelled:
		return ccp(m.Header, "HC", m.Target)
	case *FlightStrip:
		f := []string{m.Target}
		if m.FormatID != 0 || len(m.Annotations) > 0 {
			f = append(f, itoa(m.FormatID))
			f = append(f, m.Annotations...)
		}
		return ccp(m.Header, "ST", f...)
	case *PushToDepartureList:
		return ccp(m.Header, "DP", m.Target)
	case *Pointout:
		return ccp(m.Header, "PT", m.Target)
	case *IHaveTarget:
		return ccp(m.Header, "IH", m.Target)
	case *SharedState:
		return ccp(m.Header, string(m.Type), m.Target, m.Value)
	case *LandLineCommand:
		if m.Address == "" {
			return ccp(m.Header, string(m.Type))
		}
		return ccp(m.Header, string(m.Type), m.Address, itoa(m.Port))
	case *PlaneInfoRequest:
		return "#SB" + join(m.From, m.To, "PIR")
	case *PlaneInfoResponse:
		f := []string{m.From, m.To, "PI", "GEN"}
		for _, kv := range [][2]string{
			{"EQUIPMENT", m.Equipment},
			{"AIRLINE", m.Airline},
			{"LIVERY", m.Livery},
			{"CSL", m.CSL},
		} {
			if kv[1] != "" {
				f = append(f, kv[0]+"="+kv[1])
			}
		}
		return "#SB" + join(f...)
	case *LegacyPlaneInfoResponse:
		return "#SB" + join(m.From, m.To, "PI", "X", "0", "1", m.Equipment)
	case *FlightPlan:
		return "$FP" + join(append([]string{m.From, m.To}, m.FlightPlanFields.fields()...)...)
	case *FlightPlanAmendment:
		return "$AM" + join(append([]string{m.From, m.To, m.Callsign}, m.FlightPlanFields.fields()...)...)
	case *Ping:
		return "$PI" + join(m.From, m.To, m.Timestamp)
	case *Pong:
		return "$PO" + join(m.From, m.To, m.Timestamp)
	case *Handoff:
		return "$HO" + join(m.From, m.To, m.Target)
	case *HandoffAccept:
		return "$HA" + join(m.From, m.To, m.Target)
	case *MetarRequest:
		return "$AX" + join(m.From, m.To, "METAR", m.Station)
	case *MetarResponse:
		return "$AR" + join(m.From, m.To, "METAR", m.Metar)
	case *ClientQuery:
		return "$CQ" + join(append([]string{m.From, m.To, string(m.QueryType)}, m.Payload...)...)
	case *ClientQueryResponse:
		return "$CR" + join(append([]string{m.From, m.To, string(m.QueryType)}, m.Payload...)...)
	case *AuthChallenge:
		return "$ZC" + join(m.From, m.To, m.Challenge)
	case *AuthResponse:
		return "$ZR" + join(m.From, m.To, m.Response)
	case *KillRequest:
		if m.Reason == "" {
			return "$!!" + join(m.From, m.To)
		}
		return "$!!" + join(m.From, m.To, m.Reason)
	case *ProtocolError:
		return "$ER" + join(m.From, m.To, fmt.Sprintf("%03d", int(m.ErrorType)), m.Param, m.Message)
	default:
		return ""
	}
}

func (f FlightPlanFields) fields() []string {
	return []string{
		f.Rules.String(),
		f.Equipment,
		itoa(f.TrueAirspeed),
		f.DepAirport,
		f.EstimatedDepTime,
		f.ActualDepTime,
		f.CruiseAlt,
		f.DestAirport,
		itoa(f.HoursEnroute),
		itoa(f.MinutesEnroute),
		itoa(f.FuelAvailHours),
		itoa(f.FuelAvailMinutes),
		f.AltAirport,
		f.Remarks,
		f.Route,
	}
}

func ccp(h Header, subtype string, rest ...string) string {
	return "#PC" + join(append([]string{h.From, h.To, ClientCommunicationProtocolTag, subtype}, rest...)...)
}

func transponderMode(modeC, identing bool) string {
	switch {
	case identing:
		return "Y"
	case modeC:
		return "N"
	default:
		return "S"
	}
}

func optional(from, value string) []string {
	if value == "" {
		return []string{from}
	}
	return []string{from, value}
}

func join(fields ...string) string {
	return strings.Join(fields, Delimiter)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}

func altitude(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func velocity(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
