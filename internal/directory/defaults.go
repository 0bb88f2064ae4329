package directory

import (
	"time"

	"github.com/pantrynav/pantrynav/internal/model"
)

const weekdayHours = "Mon-Fri 8:00 AM - 5:00 PM"

// Defaults returns the built-in resources, stamped with now.
func Defaults(now time.Time) map[string]model.Resource {
	list := []model.Resource{
		{
			ID:          "mshda",
			Name:        "Michigan State Housing Development Authority (MSHDA)",
			Description: "State agency providing housing assistance and resources",
			Website:     "https://www.michigan.gov/mshda",
			Phone:       "(517) 335-4100",
			Address:     "201 Townsend St, Lansing, MI 48933",
			Hours:       weekdayHours,
			Eligibility: "Low-income families, first-time homebuyers",
			Requirements: []string{
				"Proof of income",
				"Credit check",
				"Employment verification",
			},
			Categories: []string{"Housing", "Financial Assistance"},
		},
		{
			ID:          "hud",
			Name:        "U.S. Department of Housing and Urban Development (HUD)",
			Description: "Federal agency providing housing assistance",
			Website:     "https://www.hud.gov",
			Phone:       "(800) 669-9777",
			Address:     "451 7th Street SW, Washington, DC 20410",
			Hours:       weekdayHours,
			Eligibility: "Low-income families, elderly, disabled",
			Requirements: []string{
				"Citizenship documentation",
				"Income verification",
				"Social Security number",
			},
			Categories: []string{"Housing", "Federal Assistance"},
		},
		{
			ID:          "gr_housing",
			Name:        "Grand Rapids Housing Commission",
			Description: "Local housing authority providing affordable housing",
			Website:     "https://www.grhc.org",
			Phone:       "(616) 456-3500",
			Address:     "100 James Street SE, Grand Rapids, MI 49503",
			Hours:       weekdayHours,
			Eligibility: "Low-income families, elderly, disabled",
			Requirements: []string{
				"Income verification",
				"Citizenship documentation",
				"Application form",
			},
			Categories: []string{"Housing", "Local Assistance"},
		},
		{
			ID:          "kids_food_basket",
			Name:        "Kids Food Basket",
			Description: "Provides healthy meals to children in need",
			Website:     "https://kidsfoodbasket.org",
			Phone:       "(616) 456-3500",
			Address:     "351 Leonard St NW, Grand Rapids, MI 49504",
			Hours:       weekdayHours,
			Eligibility: "Children in need of food assistance",
			Requirements: []string{
				"School enrollment",
				"Parental consent",
				"Application form",
			},
			Categories: []string{"Food Assistance", "Children's Services"},
		},
		{
			ID:           "gr_low_income_housing",
			Name:         "Grand Rapids Low Income Housing",
			Description:  "Directory of affordable housing options",
			Website:      "https://www.grlowincomehousing.com",
			Hours:        "Online",
			Eligibility:  "Low-income families",
			Requirements: []string{"Income verification"},
			Categories:   []string{"Housing", "Affordable Housing"},
		},
		{
			ID:           "gr_housing_assistance",
			Name:         "Grand Rapids Housing Assistance",
			Description:  "Local housing assistance programs",
			Website:      "https://www.grhousingassistance.org",
			Hours:        "Online",
			Eligibility:  "Various",
			Requirements: []string{"Application"},
			Categories:   []string{"Housing", "Local Assistance"},
		},
		{
			ID:           "food_pantries",
			Name:         "Grand Rapids Food Pantries",
			Description:  "Directory of local food pantries",
			Website:      "https://www.foodpantries.org/st/grand-rapids",
			Hours:        "Varies by location",
			Eligibility:  "Those in need of food assistance",
			Requirements: []string{"Photo ID"},
			Categories:   []string{"Food Assistance", "Emergency Food"},
		},
		{
			ID:           "meals_on_wheels",
			Name:         "Meals on Wheels",
			Description:  "Delivers meals to homebound individuals",
			Website:      "https://www.mealsonwheelsamerica.org",
			Hours:        "Varies by location",
			Eligibility:  "Homebound elderly or disabled",
			Requirements: []string{"Application", "Medical documentation"},
			Categories:   []string{"Food Assistance", "Home Delivery"},
		},
	}

	out := make(map[string]model.Resource, len(list))
	for _, r := range list {
		r.LastUpdated = now
		out[r.ID] = r
	}
	return out
}
