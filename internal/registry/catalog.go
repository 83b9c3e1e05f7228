package registry

import (
	"encoding/json"
	"slices"
)

// IdealFunctionality is one catalog row naming a model's ideal functionality.
type IdealFunctionality struct {
	ModelID   any    `json:"model_id"`
	ModelName string `json:"model_name"`
	ID        any    `json:"idealFunctionality_id"`
	Name      any    `json:"idealFunctionality_name"`
}

// CompositeInterface is one catalog row naming a direct composite interface.
type CompositeInterface struct {
	ModelID   any    `json:"model_id"`
	ModelName string `json:"model_name"`
	ID        any    `json:"compInterface_id"`
	Name      any    `json:"compInterface_name"`
}

// Payloads are free-form; these helpers read them without panicking on
// missing or mistyped fields.

func object(v any, key string) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return nil
	}
	out, _ := m[key].(map[string]any)
	return out
}

func objects(v any, key string) []map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return nil
	}
	list, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func values(v any, key string) []any {
	m, _ := v.(map[string]any)
	if m == nil {
		return nil
	}
	list, _ := m[key].([]any)
	return list
}

// sameID compares identifiers that may have been decoded as strings or numbers.
func sameID(a, b any) bool {
	x, ok := idString(a)
	if !ok {
		return false
	}
	y, ok := idString(b)
	return ok && x == y
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}

func containsID(ids []any, id any) bool {
	return slices.ContainsFunc(ids, func(x any) bool { return sameID(x, id) })
}

func modelName(name string, payload map[string]any) string {
	if n, ok := payload["name"].(string); ok && n != "" {
		return n
	}
	return name
}

// IdealFunctionalities lists the ideal functionality of every model that declares one.
func (r *Registry) IdealFunctionalities() ([]IdealFunctionality, error) {
	out := []IdealFunctionality{}
	err := r.each(func(name string, payload map[string]any) {
		f := object(payload, "idealFunctionality")
		if f == nil {
			return
		}
		out = append(out, IdealFunctionality{
			ModelID:   payload["id"],
			ModelName: modelName(name, payload),
			ID:        f["id"],
			Name:      f["name"],
		})
	})
	return out, err
}

// CompositeInterfaces lists every composite interface of type "direct".
func (r *Registry) CompositeInterfaces() ([]CompositeInterface, error) {
	out := []CompositeInterface{}
	err := r.each(func(name string, payload map[string]any) {
		for _, ci := range objects(object(payload, "interfaces"), "compInters") {
			if ci["type"] != "direct" {
				continue
			}
			out = append(out, CompositeInterface{
				ModelID:   payload["id"],
				ModelName: modelName(name, payload),
				ID:        ci["id"],
				Name:      ci["name"],
			})
		}
	})
	return out, err
}

// IdealFunctionalityMessages returns the messages reachable from the ideal
// functionality id: those of its composite direct interface and of its basic
// adversarial interface. Each message is annotated with the composite
// interface and the basic interface it belongs to.
func (r *Registry) IdealFunctionalityMessages(id string) ([]map[string]any, error) {
	out := []map[string]any{}
	err := r.each(func(_ string, payload map[string]any) {
		f := object(payload, "idealFunctionality")
		if f == nil || !sameID(f["id"], id) {
			return
		}
		interfaces := object(payload, "interfaces")

		var comp map[string]any
		var basicIDs []any
		for _, ci := range objects(interfaces, "compInters") {
			if sameID(f["compositeDirectInterface"], ci["id"]) {
				comp = ci
				for _, bi := range objects(ci, "basicInterfaces") {
					basicIDs = append(basicIDs, bi["idOfBasic"])
				}
			}
		}
		for _, bi := range objects(interfaces, "basicInters") {
			if sameID(f["basicAdversarialInterface"], bi["id"]) {
				basicIDs = append(basicIDs, bi["id"])
			}
		}
		out = append(out, collectMessages(interfaces, comp, basicIDs)...)
	})
	return out, err
}

// CompositeInterfaceMessages returns the messages of every basic interface
// that composite interface id is built from, annotated like
// IdealFunctionalityMessages.
func (r *Registry) CompositeInterfaceMessages(id string) ([]map[string]any, error) {
	out := []map[string]any{}
	err := r.each(func(_ string, payload map[string]any) {
		interfaces := object(payload, "interfaces")

		var comp map[string]any
		var basicIDs []any
		for _, ci := range objects(interfaces, "compInters") {
			if sameID(ci["id"], id) {
				comp = ci
				for _, bi := range objects(ci, "basicInterfaces") {
					basicIDs = append(basicIDs, bi["idOfBasic"])
				}
			}
		}
		if comp == nil {
			return
		}
		out = append(out, collectMessages(interfaces, comp, basicIDs)...)
	})
	return out, err
}

func collectMessages(interfaces, comp map[string]any, basicIDs []any) []map[string]any {
	basics := objects(interfaces, "basicInters")

	var messageIDs []any
	for _, bi := range basics {
		if containsID(basicIDs, bi["id"]) {
			messageIDs = append(messageIDs, values(bi, "messages")...)
		}
	}

	var out []map[string]any
	for _, msg := range objects(interfaces, "messages") {
		if !containsID(messageIDs, msg["id"]) {
			continue
		}
		annotated := make(map[string]any, len(msg)+2)
		for k, v := range msg {
			annotated[k] = v
		}
		if comp == nil {
			annotated["compInter"] = map[string]any{}
		} else {
			annotated["compInter"] = comp
		}
		for _, bi := range basics {
			if containsID(values(bi, "messages"), msg["id"]) {
				annotated["basicInter"] = bi
			}
		}
		out = append(out, annotated)
	}
	return out
}
