package tier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tables is the data behind the resolver. Keeping it out of control flow lets
// operators recalibrate the lists with a YAML file.
type Tables struct {
	TierA             []string          `yaml:"tier_a"`
	TierB             []string          `yaml:"tier_b"`
	Aliases           map[string]string `yaml:"aliases"`
	Suffixes          []string          `yaml:"suffixes"`
	AssociateKeywords []string          `yaml:"associate_keywords"`
	OrdinaryKeywords  []string          `yaml:"ordinary_keywords"`
}

// DefaultTables returns the built-in institution lists.
func DefaultTables() Tables {
	return Tables{
		TierA: []string{
			"清华大学", "北京大学", "复旦大学", "上海交通大学", "浙江大学", "南京大学",
			"中国科学技术大学", "哈尔滨工业大学", "西安交通大学", "北京航空航天大学",
			"北京理工大学", "中国人民大学", "武汉大学", "华中科技大学", "中山大学",
			"同济大学", "天津大学", "东南大学", "南开大学", "四川大学", "厦门大学",
		},
		TierB: []string{
			"中国科学院大学", "南方科技大学", "上海科技大学", "北京邮电大学", "北京交通大学",
			"南京航空航天大学", "南京理工大学", "西北工业大学", "西北大学", "电子科技大学",
			"重庆大学", "吉林大学", "山东大学", "中南大学", "华东师范大学", "华南理工大学",
			"东北大学", "华东理工大学", "苏州大学", "北京科技大学",
		},
		Aliases: map[string]string{
			"清华":  "清华大学",
			"北大":  "北京大学",
			"复旦":  "复旦大学",
			"上交":  "上海交通大学",
			"上交大": "上海交通大学",
			"浙大":  "浙江大学",
			"南大":  "南京大学",
			"中科大": "中国科学技术大学",
			"哈工大": "哈尔滨工业大学",
			"西交":  "西安交通大学",
			"北航":  "北京航空航天大学",
			"北理":  "北京理工大学",
			"人大":  "中国人民大学",
			"武大":  "武汉大学",
			"华科":  "华中科技大学",
			"中大":  "中山大学",
			"同济":  "同济大学",
			"天大":  "天津大学",
			"东大":  "东南大学",
			"南开":  "南开大学",
			"川大":  "四川大学",
			"厦大":  "厦门大学",
			"国科大": "中国科学院大学",

			"Tsinghua University": "清华大学",
			"Tsinghua":            "清华大学",
			"THU":                 "清华大学",

			"Peking University": "北京大学",
			"PKU":               "北京大学",

			"Fudan University": "复旦大学",

			"Shanghai Jiao Tong University": "上海交通大学",
			"SJTU":                          "上海交通大学",

			"Zhejiang University": "浙江大学",
			"Nanjing University":  "南京大学",

			"USTC": "中国科学技术大学",

			"University of Science and Technology of China": "中国科学技术大学",

			"Harbin Institute of Technology": "哈尔滨工业大学",
		},
		Suffixes: []string{
			"大学", "学院", "学校", "分校", "校区",
			"university", "college", "institute", "school",
		},
		AssociateKeywords: []string{
			"职业技术学院", "职业学院", "职业大学", "高等专科学校", "专科学校", "高职", "职院",
			"vocational", "juniorcollege", "communitycollege",
		},
		OrdinaryKeywords: []string{
			"大学", "学院", "university", "college", "institute",
		},
	}
}

// LoadTables reads a YAML file and overlays it on the defaults. Non-empty
// lists replace the built-in ones; aliases are merged.
func LoadTables(path string) (Tables, error) {
	tables := DefaultTables()
	data, err := os.ReadFile(path)
	if err != nil {
		return tables, fmt.Errorf("read tier tables: %w", err)
	}
	var overlay Tables
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return tables, fmt.Errorf("decode tier tables: %w", err)
	}
	if len(overlay.TierA) > 0 {
		tables.TierA = overlay.TierA
	}
	if len(overlay.TierB) > 0 {
		tables.TierB = overlay.TierB
	}
	if len(overlay.Suffixes) > 0 {
		tables.Suffixes = overlay.Suffixes
	}
	if len(overlay.AssociateKeywords) > 0 {
		tables.AssociateKeywords = overlay.AssociateKeywords
	}
	if len(overlay.OrdinaryKeywords) > 0 {
		tables.OrdinaryKeywords = overlay.OrdinaryKeywords
	}
	for alias, canonical := range overlay.Aliases {
		tables.Aliases[alias] = canonical
	}
	return tables, nil
}
