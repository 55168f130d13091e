package tagging

import "sort"

const mostCommonLimit = 10

// TagCount pairs a tag with how many users carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// DistributionReport summarizes tags across users.
type DistributionReport struct {
	TotalUsers int                `json:"total_users"`
	Counts     map[string]int     `json:"tag_counts"`
	Rates      map[string]float64 `json:"tag_rates"`
	MostCommon []TagCount         `json:"most_common_tags"`
}

// Distribution counts tag usage. Each element of perUser is one user's tag set.
func Distribution(perUser [][]string) DistributionReport {
	r := DistributionReport{
		TotalUsers: len(perUser),
		Counts:     make(map[string]int),
		Rates:      make(map[string]float64),
	}
	for _, tags := range perUser {
		for _, t := range tags {
			r.Counts[t]++
		}
	}
	for t, c := range r.Counts {
		r.Rates[t] = float64(c) / float64(r.TotalUsers)
		r.MostCommon = append(r.MostCommon, TagCount{Tag: t, Count: c})
	}
	sort.Slice(r.MostCommon, func(i, j int) bool {
		if r.MostCommon[i].Count != r.MostCommon[j].Count {
			return r.MostCommon[i].Count > r.MostCommon[j].Count
		}
		return r.MostCommon[i].Tag < r.MostCommon[j].Tag
	})
	if len(r.MostCommon) > mostCommonLimit {
		r.MostCommon = r.MostCommon[:mostCommonLimit]
	}
	return r
}
