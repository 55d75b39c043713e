package yamlgraph

// yamlGraph is the on-disk shape of graphs/*.yaml.
type yamlGraph struct {
	Name  string            `yaml:"name"`
	Vars  map[string]string `yaml:"vars"`
	Nodes []yamlNode        `yaml:"nodes"`
	Edges []yamlEdge        `yaml:"edges"`
}

type yamlNode struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Inputs map[string]any `yaml:"inputs"`
	Graph  *yamlSubgraph  `yaml:"graph"`
}

// yamlSubgraph is the body of a node of type graph.
type yamlSubgraph struct {
	Nodes []yamlNode `yaml:"nodes"`
	Edges []yamlEdge `yaml:"edges"`
}

type yamlEdge struct {
	Source      yamlConnection `yaml:"source"`
	Destination yamlConnection `yaml:"destination"`
}

type yamlConnection struct {
	NodeID string `yaml:"node_id"`
	Field  string `yaml:"field"`
}
