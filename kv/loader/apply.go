package loader

import (
	"context"
	"sort"
)

type entryKey struct {
	section string
	key     string
}

// Apply 返回把数据流写入 namespace 的 Listener
// 同一个 key 以最后一行为准，删除先执行，新增和更新在一次提交中写入
func Apply(ctx context.Context, w Writer, namespace string) Listener {
	return func(stream Stream) error {
		latest := map[entryKey]Record{}
		if err := stream.Each(func(record Record) error {
			latest[entryKey{section: record.Section, key: record.Key}] = record
			return nil
		}); err != nil {
			return err
		}

		var deletes []entryKey
		sections := map[string][]string{}
		for k, record := range latest {
			if record.Change == ChangeTypeDelete {
				deletes = append(deletes, k)
				continue
			}
			sections[k.section] = append(sections[k.section], k.key)
		}

		for _, k := range deletes {
			if err := w.RemoveKey(ctx, namespace, k.section, k.key); err != nil {
				return err
			}
		}

		return w.Batch(ctx, func(ctx context.Context) error {
			for section, keys := range sections {
				sort.Strings(keys)
				values := make([]string, 0, len(keys))
				for _, key := range keys {
					values = append(values, latest[entryKey{section: section, key: key}].Value)
				}
				if err := w.SetBatchValues(ctx, namespace, section, keys, values); err != nil {
					return err
				}
			}
			return nil
		})
	}
}
