package signals

import "SignalBoard/internal/domain/models"

// Compare matches the two sources by stock code, in vision order. A conflict is
// a pair pointing in opposite directions; agreement is the share of exact matches
// among stocks present in both.
func Compare(vision, api *models.Snapshot) models.Comparison {
	cmp := models.Comparison{Items: []models.SignalComparison{}}
	if vision == nil || api == nil {
		return cmp
	}

	byCode := make(map[string]models.StockResult, len(api.Results))
	for _, r := range api.Results {
		byCode[r.Code] = r
	}

	seen := make(map[string]bool, len(vision.Results))
	for _, v := range vision.Results {
		seen[v.Code] = true
		a, ok := byCode[v.Code]
		if !ok {
			cmp.OnlyVision++
			continue
		}
		item := models.SignalComparison{
			Code:         v.Code,
			Name:         v.Name,
			VisionSignal: v.Signal,
			APISignal:    a.Signal,
			Match:        v.Signal == a.Signal,
			Conflict:     v.Signal.Direction()*a.Signal.Direction() < 0,
		}
		if item.Match {
			cmp.Matched++
		}
		if item.Conflict {
			cmp.Conflicts++
		}
		cmp.Items = append(cmp.Items, item)
	}
	for _, a := range api.Results {
		if !seen[a.Code] {
			cmp.OnlyAPI++
		}
	}
	if n := len(cmp.Items); n > 0 {
		cmp.Agreement = float64(cmp.Matched) / float64(n)
	}
	return cmp
}
