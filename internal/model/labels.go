package model

import (
	"fmt"
	"strings"
)

// Label is one of the fixed classification outcomes.
type Label int

const (
	Anthracnose Label = iota
	CSSVD
	Healthy
)

// AllLabels lists every Label in declaration order.
var AllLabels = []Label{Anthracnose, CSSVD, Healthy}

func (l Label) String() string {
	switch l {
	case Anthracnose:
		return "anthracnose"
	case CSSVD:
		return "cssvd"
	case Healthy:
		return "healthy"
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// Valid reports whether l is one of AllLabels.
func (l Label) Valid() bool {
	return l >= Anthracnose && l <= Healthy
}

// ParseLabel maps a label name from config or model metadata to a Label.
func ParseLabel(s string) (Label, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, l := range AllLabels {
		if l.String() == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

// Recommendation returns the advisory text shown to the grower. The text
// carries inline HTML (<br>, <a>) that the frontend renders as-is.
func (l Label) Recommendation() string {
	switch l {
	case Anthracnose:
		return anthracnoseAdvice
	case CSSVD:
		return cssvdAdvice
	case Healthy:
		return healthyAdvice
	}
	panic(fmt.Sprintf("model: no recommendation for %v", l))
}

const healthyAdvice = "✅ Your cocoa plant appears healthy.\n\n" +
	" Keep monitoring regularly and maintain good practices:\n" +
	"- Prune diseased or overcrowded branches\n" +
	"- Apply compost or fertilizer periodically\n" +
	"- Weed around the base\n" +
	"- Monitor for pests like mealybugs or black pod.\n\n" +
	"📖 Learn more:<br>" +
	"<a href=\"https://www.worldcocoafoundation.org/blog/best-practices-for-cocoa-farmers/\" target=\"_blank\">World Cocoa Foundation: Best Practices</a>"

const cssvdAdvice = "⚠️ Your cocoa plant may have Cocoa Swollen Shoot Virus Disease (CSSVD).\n\n" +
	" Immediate Actions:\n" +
	"- Isolate the affected tree to stop the spread\n" +
	"- Contact your local agricultural extension officer or cocoa desk officer\n" +
	"- Remove and destroy infected trees carefully under supervision\n" +
	"- Control ants and mealybugs (they spread the virus)\n" +
	"- Do not reuse tools without sanitizing.\n\n" +
	" Spreads through mealybugs and grafting from infected trees.\n\n" +
	"📖 Learn more:<br>" +
	"<a href=\"https://www.plantwise.org/blog/agroforestry-mitigating-cocoa-swollen-shoot-virus-disease-in-ghana/\" target=\"_blank\">Plantwise: Agroforestry Mitigation</a><br>" +
	"<a href=\"https://en.wikipedia.org/wiki/Cacao_swollen_shoot_virus\" target=\"_blank\">Wikipedia: Cacao Swollen Shoot Virus Overview</a>"

const anthracnoseAdvice = "🚨 Your cocoa plant may have Anthracnose, a fungal disease caused by *Colletotrichum* species.\n\n" +
	" What to do:\n" +
	"- Remove and burn infected pods and leaves\n" +
	"- Improve airflow by pruning densely packed trees\n" +
	"- Apply copper-based fungicides if available\n" +
	"- Disinfect tools after each use\n" +
	"- Avoid overhead watering if possible.\n\n" +
	" Fungi thrive in humid, wet conditions — improve drainage.\n\n" +
	"📖 Learn more:<br>" +
	"<a href=\"https://www.icco.org/about-cocoa/pests-diseases/\" target=\"_blank\">ICCO: Cocoa Pests & Diseases (includes Anthracnose)</a><br>" +
	"<a href=\"https://www.cabi.org/cpc/datasheet/18236\" target=\"_blank\">CABI Datasheet: Cocoa Anthracnose</a>"
