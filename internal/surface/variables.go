package surface

import (
	"fmt"
	"strings"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

// BuildVariables flattens snap into host variables. Definitions are returned in a stable order;
// values are strings except durations and send rates, which stay numeric.
func BuildVariables(snap *state.Snapshot) ([]VariableDefinition, map[string]any) {
	v := &variables{values: map[string]any{}}
	if snap == nil {
		return v.defs, v.values
	}

	for _, ch := range snap.Channels.Values() {
		c := string(ch.ID)
		v.set("channel_"+c+"_name", "Channel "+c+" Name", ch.Name)

		active := ""
		if l, ok := ch.ActiveLayout(); ok {
			active = l.Name
		}
		v.set("channel_"+c+"_active_layout", "Channel "+c+" Active Layout", active)

		if enc, ok := ch.VideoEncoder(); ok {
			res, fps, rate := enc.Resolution, enc.Framerate, enc.Bitrate
			if st := enc.Status; st != nil {
				res = firstNonEmpty(st.Resolution, res)
				fps = firstNonEmpty(st.Framerate, fps)
				rate = firstNonEmpty(st.Bitrate, rate)
			}
			v.set("channel_"+c+"_resolution", "Channel "+c+" Resolution", res.String())
			v.set("channel_"+c+"_fps", "Channel "+c+" FPS", fps.String())
			v.set("channel_"+c+"_bitrate", "Channel "+c+" Bitrate", rate.String())
		}

		for _, p := range ch.Publishers.Values() {
			key := "stream_" + c + "_" + string(p.ID)
			label := "Stream " + c + "-" + string(p.ID)
			v.set(key+"_name", label+" Name", p.Name)
			v.set(key+"_state", label+" State", p.Status.State)
			if rate, ok := p.Status.SendRate(); ok {
				v.set(key+"_bitrate", label+" Bitrate", rate)
			}
		}
	}

	for _, r := range snap.Recorders.Values() {
		key := "recorder_" + string(r.ID)
		label := "Recorder " + string(r.ID)
		v.set(key+"_state", label+" State", r.Status.State)
		v.set(key+"_duration", label+" Duration", r.Status.Duration)
		v.set(key+"_active", label+" Active", r.Status.Active.String())
	}

	if sys := snap.System; sys != nil {
		if st := sys.Status; st != nil {
			v.set("system_status_date", "System Status Date", st.Date.String())
			v.set("system_status_uptime", "System Status Uptime", st.Uptime.String())
			v.set("system_status_cpuload", "System CPU Load", st.CPULoad.String())
			v.set("system_status_cputemp", "System CPU Temp", st.CPUTemp.String())
		}
		if sys.AFU != nil {
			states := make([]string, len(sys.AFU))
			for i, a := range sys.AFU {
				states[i] = a.Status.State
			}
			v.set("afu_state", "AFU State", strings.Join(states, ","))
		}
		if fw := sys.Firmware; fw != nil {
			product := fw.ProductName
			if product == "" && sys.Product != nil {
				product = sys.Product.Name
			}
			v.set("firmware_version", "Firmware Version", fw.Version)
			v.set("product_name", "Product Name", product)
		}
		if id := sys.Identity; id != nil {
			v.set("identity_name", "Identity Name", id.Name)
			v.set("identity_location", "Identity Location", id.Location)
			v.set("identity_description", "Identity Description", id.Description)
		}
	}

	for _, ch := range snap.Channels.Values() {
		md := ch.Metadata
		if md == nil {
			continue
		}
		c := string(ch.ID)
		v.set("channel_"+c+"_metadata_title", "Channel "+c+" Metadata Title", md.Title)
		v.set("channel_"+c+"_metadata_author", "Channel "+c+" Metadata Author", md.Author)
		v.set("channel_"+c+"_metadata_rec_prefix", "Channel "+c+" Filename Prefix", md.RecPrefix)
	}
	return v.defs, v.values
}

type variables struct {
	defs   []VariableDefinition
	values map[string]any
}

func (v *variables) set(id, name string, value any) {
	v.defs = append(v.defs, VariableDefinition{ID: id, Name: name})
	v.values[id] = value
}

func firstNonEmpty(a, b state.Scalar) state.Scalar {
	if a != "" {
		return a
	}
	return b
}

// FormatValue renders a variable value the way the host substitutes it into text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
